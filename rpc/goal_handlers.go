package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"bullseye/core/goal"
	"bullseye/crypto"
)

const (
	codeGoalInvalidParams = -32041
	codeGoalNotFound      = -32042
	codeGoalForbidden     = -32043
	codeGoalConflict      = -32044
	codeGoalInternal      = -32045
)

type callerParams struct {
	Caller string `json:"caller"`
}

type goalCreateParams struct {
	Caller      string   `json:"caller"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Deadline    int64    `json:"deadline"`
	Route       string   `json:"route"`
	Arbiters    []string `json:"arbiters"`
}

type goalActorParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type goalVoteParams struct {
	Caller  string `json:"caller"`
	ID      string `json:"id"`
	Approve bool   `json:"approve"`
}

type goalIDParams struct {
	ID string `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

type directoryJSON struct {
	Owner        string  `json:"owner"`
	TotalCreated uint64  `json:"totalCreated"`
	OpenSequence *uint64 `json:"openSequence,omitempty"`
}

type goalJSON struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Sequence    uint64 `json:"sequence"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Deadline    int64  `json:"deadline"`
	Route       string `json:"route"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	Ballot      string `json:"ballot"`
}

type ballotJSON struct {
	ID                   string   `json:"id"`
	Goal                 string   `json:"goal"`
	Arbiters             []string `json:"arbiters"`
	VotesCast            []bool   `json:"votesCast"`
	YesCount             uint8    `json:"yesCount"`
	NoCount              uint8    `json:"noCount"`
	Finalized            bool     `json:"finalized"`
	Outcome              *string  `json:"outcome,omitempty"`
	VerificationDeadline int64    `json:"verificationDeadline,omitempty"`
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func newDirectoryJSON(d *goal.Directory) directoryJSON {
	out := directoryJSON{
		Owner:        crypto.NewAddress(crypto.ByePrefix, d.Owner[:]).String(),
		TotalCreated: d.TotalCreated,
	}
	if d.OpenSequence != nil {
		seq := *d.OpenSequence
		out.OpenSequence = &seq
	}
	return out
}

func newGoalJSON(g *goal.Goal) goalJSON {
	return goalJSON{
		ID:          hex.EncodeToString(g.ID[:]),
		Owner:       crypto.NewAddress(crypto.ByePrefix, g.Owner[:]).String(),
		Sequence:    g.Sequence,
		Title:       g.Title,
		Description: g.Description,
		Amount:      g.Amount.String(),
		Deadline:    g.Deadline,
		Route:       g.Route.String(),
		Status:      g.Status.String(),
		CreatedAt:   g.CreatedAt,
		Ballot:      hex.EncodeToString(g.Ballot[:]),
	}
}

func newBallotJSON(b *goal.Ballot) ballotJSON {
	arbiters := make([]string, 0, goal.ArbiterCount)
	for _, arb := range b.Arbiters {
		arbiters = append(arbiters, crypto.NewAddress(crypto.ByePrefix, arb[:]).String())
	}
	out := ballotJSON{
		ID:                   hex.EncodeToString(b.ID[:]),
		Goal:                 hex.EncodeToString(b.Goal[:]),
		Arbiters:             arbiters,
		VotesCast:            b.VotesCast[:],
		YesCount:             b.YesCount,
		NoCount:              b.NoCount,
		Finalized:            b.Finalized,
		VerificationDeadline: b.VerificationDeadline,
	}
	if b.Finalized {
		outcome := b.Outcome.String()
		out.Outcome = &outcome
	}
	return out
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseGoalIDParam(value string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(value, "0x")))
	if err != nil {
		return out, err
	}
	if len(decoded) != 32 {
		return out, errors.New("goal id must be 32 bytes")
	}
	copy(out[:], decoded)
	return out, nil
}

func parseRoute(value string) (goal.FailureRoute, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "burn":
		return goal.RouteBurn, nil
	case "treasury":
		return goal.RouteTreasury, nil
	default:
		return 0, errors.New("route must be burn or treasury")
	}
}

// writeGoalError maps the engine's error taxonomy onto JSON-RPC error codes:
// validation failures surface as invalid params, lifecycle violations as
// conflicts, role violations as forbidden.
func writeGoalError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, goal.ErrTitleTooLong),
		errors.Is(err, goal.ErrDescriptionTooLong),
		errors.Is(err, goal.ErrAmountTooLow),
		errors.Is(err, goal.ErrAmountTooHigh),
		errors.Is(err, goal.ErrDeadlineInPast),
		errors.Is(err, goal.ErrInvalidArbiter):
		writeError(w, http.StatusBadRequest, id, codeGoalInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, goal.ErrUnauthorized),
		errors.Is(err, goal.ErrNotAVerifier):
		writeError(w, http.StatusForbidden, id, codeGoalForbidden, "forbidden", err.Error())
	case errors.Is(err, goal.ErrDirectoryNotFound),
		errors.Is(err, goal.ErrGoalNotFound),
		errors.Is(err, goal.ErrBallotNotFound):
		writeError(w, http.StatusNotFound, id, codeGoalNotFound, "not_found", err.Error())
	case errors.Is(err, goal.ErrAlreadyInitialized),
		errors.Is(err, goal.ErrActiveGoalExists),
		errors.Is(err, goal.ErrInvalidGoalStatus),
		errors.Is(err, goal.ErrAlreadyVoted),
		errors.Is(err, goal.ErrAlreadyFinalized),
		errors.Is(err, goal.ErrVerificationNotFinalized),
		errors.Is(err, goal.ErrVerificationWindowOpen),
		errors.Is(err, goal.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, id, codeGoalConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeGoalInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleInitializeDirectory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	dir, err := s.node.InitializeDirectory(caller)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newDirectoryJSON(dir))
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params goalCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", "amount must be a non-negative integer")
		return
	}
	route, err := parseRoute(params.Route)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	if len(params.Arbiters) != goal.ArbiterCount {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", "exactly three arbiters required")
		return
	}
	var arbiters [goal.ArbiterCount][20]byte
	for i, raw := range params.Arbiters {
		arb, err := parseAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
			return
		}
		arbiters[i] = arb
	}
	created, err := s.node.CreateGoal(caller, goal.CreateGoalInput{
		Title:       params.Title,
		Description: params.Description,
		Amount:      amount,
		Deadline:    params.Deadline,
		Route:       route,
		Arbiters:    arbiters,
	})
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newGoalJSON(created))
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	caller, goalID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	updated, err := s.node.RequestVerification(caller, goalID)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newGoalJSON(updated))
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params goalVoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	goalID, err := parseGoalIDParam(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	ballot, err := s.node.CastVote(caller, goalID, params.Approve)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newBallotJSON(ballot))
}

func (s *Server) handleFinalizeVerification(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params goalIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	goalID, err := parseGoalIDParam(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	ballot, err := s.node.FinalizeVerification(goalID)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newBallotJSON(ballot))
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	caller, goalID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	settled, err := s.node.Settle(caller, goalID)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newGoalJSON(settled))
}

func (s *Server) decodeActor(w http.ResponseWriter, req *RPCRequest) ([20]byte, [32]byte, bool) {
	var params goalActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	goalID, err := parseGoalIDParam(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	return caller, goalID, true
}

func (s *Server) handleGetGoal(w http.ResponseWriter, req *RPCRequest) {
	var params goalIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	goalID, err := parseGoalIDParam(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	g, ok := s.node.GetGoal(goalID)
	if !ok {
		writeGoalError(w, req.ID, goal.ErrGoalNotFound)
		return
	}
	writeResult(w, req.ID, newGoalJSON(g))
}

func (s *Server) handleGetDirectory(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	dir, ok := s.node.GetDirectory(owner)
	if !ok {
		writeGoalError(w, req.ID, goal.ErrDirectoryNotFound)
		return
	}
	writeResult(w, req.ID, newDirectoryJSON(dir))
}

func (s *Server) handleGetBallot(w http.ResponseWriter, req *RPCRequest) {
	var params goalIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	ballotID, err := parseGoalIDParam(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	ballot, ok := s.node.GetBallot(ballotID)
	if !ok {
		writeGoalError(w, req.ID, goal.ErrBallotNotFound)
		return
	}
	writeResult(w, req.ID, newBallotJSON(ballot))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGoalInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeGoalError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, accountJSON{
		Address: params.Address,
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Events())
}
