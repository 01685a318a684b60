package goal

import (
	"fmt"
	"math/big"
	"time"

	"bullseye/core/events"
	"bullseye/core/types"
)

type engineState interface {
	DirectoryPut(*Directory) error
	DirectoryGet(owner [20]byte) (*Directory, bool)
	GoalPut(*Goal) error
	GoalGet(id [32]byte) (*Goal, bool)
	BallotPut(*Ballot) error
	BallotGet(id [32]byte) (*Ballot, bool)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine wires the goal escrow state machine with external state and event
// emitters. It holds no record state of its own: every operation is a single
// atomic step against the configured backend, evaluated at the caller-supplied
// current time.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	treasury [20]byte
	nowFn    func() int64
}

// NewEngine creates a goal engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTreasury configures the address that receives failed stakes routed to the
// treasury.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadGoal(id [32]byte) (*Goal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	g, ok := e.state.GoalGet(id)
	if !ok {
		return nil, ErrGoalNotFound
	}
	return g, nil
}

func (e *Engine) loadBallot(id [32]byte) (*Ballot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	b, ok := e.state.BallotGet(id)
	if !ok {
		return nil, ErrBallotNotFound
	}
	return b, nil
}

func (e *Engine) loadDirectory(owner [20]byte) (*Directory, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	dir, ok := e.state.DirectoryGet(owner)
	if !ok {
		return nil, ErrDirectoryNotFound
	}
	return dir, nil
}

// transfer moves amount between two ledger accounts. A zero amount is a no-op.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("goal: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureDefaults()
	toAcc = toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// InitializeDirectory creates the per-owner goal directory. It is a one-time
// setup step: the operation is not an upsert, callers wanting idempotency must
// check for existence first.
func (e *Engine) InitializeDirectory(caller [20]byte) (*Directory, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.DirectoryGet(caller); ok {
		return nil, ErrAlreadyInitialized
	}
	dir := &Directory{Owner: caller}
	if err := e.state.DirectoryPut(dir); err != nil {
		return nil, err
	}
	e.emit(events.DirectoryInitialized{Owner: caller})
	return dir.Clone(), nil
}

// CreateGoalInput carries the caller-supplied parameters for CreateGoal.
type CreateGoalInput struct {
	Title       string
	Description string
	Amount      *big.Int
	Deadline    int64
	Route       FailureRoute
	Arbiters    [ArbiterCount][20]byte
}

// CreateGoal validates the input, locks the stake in the module vault and
// creates the goal together with its ballot. The checks run in a fixed order
// so each rejection maps to exactly one error.
func (e *Engine) CreateGoal(caller [20]byte, input CreateGoalInput) (*Goal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if len(input.Title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	if len(input.Description) > MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	amount := cloneBigInt(input.Amount)
	if amount.Cmp(MinStake) < 0 {
		return nil, ErrAmountTooLow
	}
	if amount.Cmp(MaxStake) > 0 {
		return nil, ErrAmountTooHigh
	}
	now := e.now()
	if input.Deadline <= now {
		return nil, ErrDeadlineInPast
	}
	if !input.Route.Valid() {
		return nil, fmt.Errorf("goal: invalid failure route: %d", input.Route)
	}
	// The panel size is fixed by the input type. Empty addresses are rejected;
	// duplicated addresses are not, which lets one address hold several ballot
	// positions. Known gap, kept intentionally.
	for _, arb := range input.Arbiters {
		if arb == ([20]byte{}) {
			return nil, ErrInvalidArbiter
		}
	}
	dir, err := e.loadDirectory(caller)
	if err != nil {
		return nil, err
	}
	if dir.OpenSequence != nil {
		return nil, ErrActiveGoalExists
	}

	sequence := dir.TotalCreated
	goalID := GoalID(caller, sequence)
	ballotID := BallotID(goalID)

	if err := e.transfer(caller, VaultAddress(), amount); err != nil {
		return nil, err
	}

	g := &Goal{
		ID:          goalID,
		Owner:       caller,
		Sequence:    sequence,
		Title:       input.Title,
		Description: input.Description,
		Amount:      amount,
		Deadline:    input.Deadline,
		Route:       input.Route,
		Status:      StatusActive,
		CreatedAt:   now,
		Ballot:      ballotID,
	}
	b := &Ballot{
		ID:       ballotID,
		Goal:     goalID,
		Arbiters: input.Arbiters,
	}
	if err := e.state.GoalPut(g); err != nil {
		return nil, err
	}
	if err := e.state.BallotPut(b); err != nil {
		return nil, err
	}
	dir.TotalCreated++
	dir.OpenSequence = &sequence
	if err := e.state.DirectoryPut(dir); err != nil {
		return nil, err
	}
	e.emit(events.GoalCreated{
		ID:        goalID,
		Owner:     caller,
		Sequence:  sequence,
		Amount:    amount,
		Deadline:  input.Deadline,
		CreatedAt: now,
	})
	return g.Clone(), nil
}

// RequestVerification moves an active goal into the submitted state and opens
// the arbiter voting window.
func (e *Engine) RequestVerification(caller [20]byte, goalID [32]byte) (*Goal, error) {
	g, err := e.loadGoal(goalID)
	if err != nil {
		return nil, err
	}
	if g.Owner != caller {
		return nil, ErrUnauthorized
	}
	if g.Status != StatusActive {
		return nil, ErrInvalidGoalStatus
	}
	b, err := e.loadBallot(g.Ballot)
	if err != nil {
		return nil, err
	}
	g.Status = StatusSubmitted
	b.VerificationDeadline = e.now() + VerificationWindow
	if err := e.state.GoalPut(g); err != nil {
		return nil, err
	}
	if err := e.state.BallotPut(b); err != nil {
		return nil, err
	}
	e.emit(events.GoalSubmitted{
		ID:                   g.ID,
		Owner:                g.Owner,
		VerificationDeadline: b.VerificationDeadline,
	})
	return g.Clone(), nil
}

// CastVote records one arbiter's verdict and finalizes the ballot the moment
// either tally reaches the quorum threshold. Both tallies only ever grow and
// the quorum check runs after every mutation, so finalization fires at most
// once; afterwards the finalized flag blocks all further votes.
func (e *Engine) CastVote(caller [20]byte, goalID [32]byte, approve bool) (*Ballot, error) {
	g, err := e.loadGoal(goalID)
	if err != nil {
		return nil, err
	}
	b, err := e.loadBallot(g.Ballot)
	if err != nil {
		return nil, err
	}
	position := b.ArbiterIndex(caller)
	if position < 0 {
		return nil, ErrNotAVerifier
	}
	if b.VotesCast[position] {
		return nil, ErrAlreadyVoted
	}
	if b.Finalized {
		return nil, ErrAlreadyFinalized
	}
	b.VotesCast[position] = true
	if approve {
		b.YesCount++
	} else {
		b.NoCount++
	}
	if b.YesCount >= QuorumThreshold {
		b.Finalized = true
		b.Outcome = OutcomeSuccess
	} else if b.NoCount >= QuorumThreshold {
		b.Finalized = true
		b.Outcome = OutcomeFailure
	}
	if err := e.state.BallotPut(b); err != nil {
		return nil, err
	}
	e.emit(events.GoalVoteCast{
		ID:       g.ID,
		Arbiter:  caller,
		Approve:  approve,
		YesCount: b.YesCount,
		NoCount:  b.NoCount,
	})
	if b.Finalized {
		e.emit(events.GoalFinalized{ID: g.ID, Outcome: b.Outcome.String()})
	}
	return b.Clone(), nil
}

// FinalizeVerification closes a ballot whose voting window elapsed without
// reaching quorum. Anyone may invoke it once the verification deadline has
// passed: the outcome is success only when the yes votes strictly outnumber
// the no votes, so ties and silent panels fail the goal.
func (e *Engine) FinalizeVerification(goalID [32]byte) (*Ballot, error) {
	g, err := e.loadGoal(goalID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusSubmitted {
		return nil, ErrInvalidGoalStatus
	}
	b, err := e.loadBallot(g.Ballot)
	if err != nil {
		return nil, err
	}
	if b.Finalized {
		return nil, ErrAlreadyFinalized
	}
	if e.now() < b.VerificationDeadline {
		return nil, ErrVerificationWindowOpen
	}
	b.Finalized = true
	if b.YesCount > b.NoCount {
		b.Outcome = OutcomeSuccess
	} else {
		b.Outcome = OutcomeFailure
	}
	if err := e.state.BallotPut(b); err != nil {
		return nil, err
	}
	e.emit(events.GoalFinalized{ID: g.ID, Outcome: b.Outcome.String()})
	return b.Clone(), nil
}

// Settle releases the locked amount according to the finalized ballot and the
// goal's failure route, then clears the owner's open-goal marker so a new goal
// can be created. The amount transferred is exactly the amount locked at
// creation.
func (e *Engine) Settle(caller [20]byte, goalID [32]byte) (*Goal, error) {
	g, err := e.loadGoal(goalID)
	if err != nil {
		return nil, err
	}
	if g.Owner != caller {
		return nil, ErrUnauthorized
	}
	if g.Status == StatusSettled {
		return nil, ErrInvalidGoalStatus
	}
	b, err := e.loadBallot(g.Ballot)
	if err != nil {
		return nil, err
	}
	if !b.Finalized {
		return nil, ErrVerificationNotFinalized
	}
	recipient, err := SettlementRecipient(b.Outcome, g.Route, g.Owner, e.treasury)
	if err != nil {
		return nil, err
	}
	if err := e.transfer(VaultAddress(), recipient, g.Amount); err != nil {
		return nil, err
	}
	g.Status = StatusSettled
	if err := e.state.GoalPut(g); err != nil {
		return nil, err
	}
	dir, err := e.loadDirectory(g.Owner)
	if err != nil {
		return nil, err
	}
	dir.OpenSequence = nil
	if err := e.state.DirectoryPut(dir); err != nil {
		return nil, err
	}
	switch {
	case b.Outcome == OutcomeSuccess:
		e.emit(events.GoalClaimed{ID: g.ID, Owner: g.Owner, Amount: cloneBigInt(g.Amount)})
	case g.Route == RouteBurn:
		e.emit(events.GoalBurned{ID: g.ID, Amount: cloneBigInt(g.Amount)})
	default:
		e.emit(events.GoalTreasury{ID: g.ID, Amount: cloneBigInt(g.Amount), Recipient: recipient})
	}
	return g.Clone(), nil
}

// SettlementRecipient is the pure routing function used by Settle: success
// returns the stake to the owner, failure routes it to the burn address or the
// treasury depending on the goal's failure route.
func SettlementRecipient(outcome Outcome, route FailureRoute, owner, treasury [20]byte) ([20]byte, error) {
	switch outcome {
	case OutcomeSuccess:
		return owner, nil
	case OutcomeFailure:
		switch route {
		case RouteBurn:
			return BurnAddress(), nil
		case RouteTreasury:
			return treasury, nil
		default:
			return [20]byte{}, fmt.Errorf("goal: invalid failure route: %d", route)
		}
	default:
		return [20]byte{}, fmt.Errorf("goal: no settlement recipient for outcome %d", outcome)
	}
}
