// Package goal provides a typed JSON-RPC client for the goal node.
package goal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a thin JSON-RPC client against the bullseyed node. Construct it
// explicitly with NewClient; it owns no global state.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	nextID    atomic.Int64
}

// Option customises a Client.
type Option func(*Client)

// WithAuthToken attaches a bearer token to every mutating call.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for the node at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPCError carries the JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Directory mirrors the node's directory result.
type Directory struct {
	Owner        string  `json:"owner"`
	TotalCreated uint64  `json:"totalCreated"`
	OpenSequence *uint64 `json:"openSequence,omitempty"`
}

// Goal mirrors the node's goal result. Amount is a decimal base-unit string.
type Goal struct {
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

// Ballot mirrors the node's ballot result.
type Ballot struct {
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

// Account mirrors the node's account result.
type Account struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Event is a settled node event.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// CreateGoalRequest describes a new goal commitment.
type CreateGoalRequest struct {
	Caller      string
	Title       string
	Description string
	Amount      *big.Int
	Deadline    int64
	Route       string
	Arbiters    [3]string
}

// InitializeDirectory creates the caller's goal directory.
func (c *Client) InitializeDirectory(ctx context.Context, caller string) (*Directory, error) {
	var out Directory
	params := map[string]string{"caller": caller}
	if err := c.call(ctx, "goal_initializeDirectory", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGoal stakes funds on a new goal and returns the created record.
func (c *Client) CreateGoal(ctx context.Context, req CreateGoalRequest) (*Goal, error) {
	if req.Amount == nil {
		return nil, errors.New("goal: amount required")
	}
	params := map[string]interface{}{
		"caller":      req.Caller,
		"title":       req.Title,
		"description": req.Description,
		"amount":      req.Amount.String(),
		"deadline":    req.Deadline,
		"route":       req.Route,
		"arbiters":    req.Arbiters[:],
	}
	var out Goal
	if err := c.call(ctx, "goal_create", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestVerification moves an active goal into its verification window.
func (c *Client) RequestVerification(ctx context.Context, caller, goalID string) (*Goal, error) {
	var out Goal
	params := map[string]string{"caller": caller, "id": goalID}
	if err := c.call(ctx, "goal_requestVerification", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CastVote records an arbiter's vote and returns the updated ballot.
func (c *Client) CastVote(ctx context.Context, caller, goalID string, approve bool) (*Ballot, error) {
	var out Ballot
	params := map[string]interface{}{"caller": caller, "id": goalID, "approve": approve}
	if err := c.call(ctx, "goal_castVote", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizeVerification closes a stale ballot after its window elapsed.
func (c *Client) FinalizeVerification(ctx context.Context, goalID string) (*Ballot, error) {
	var out Ballot
	params := map[string]string{"id": goalID}
	if err := c.call(ctx, "goal_finalizeVerification", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle pays out a finalized goal according to its outcome and route.
func (c *Client) Settle(ctx context.Context, caller, goalID string) (*Goal, error) {
	var out Goal
	params := map[string]string{"caller": caller, "id": goalID}
	if err := c.call(ctx, "goal_settle", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGoal fetches a goal by its identifier.
func (c *Client) GetGoal(ctx context.Context, goalID string) (*Goal, error) {
	var out Goal
	if err := c.call(ctx, "goal_get", map[string]string{"id": goalID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDirectory fetches the directory for an owner address.
func (c *Client) GetDirectory(ctx context.Context, owner string) (*Directory, error) {
	var out Directory
	if err := c.call(ctx, "goal_getDirectory", map[string]string{"address": owner}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBallot fetches a ballot by its identifier.
func (c *Client) GetBallot(ctx context.Context, ballotID string) (*Ballot, error) {
	var out Ballot
	if err := c.call(ctx, "goal_getBallot", map[string]string{"id": ballotID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches the balance and nonce for an address.
func (c *Client) GetAccount(ctx context.Context, address string) (*Account, error) {
	var out Account
	if err := c.call(ctx, "goal_getAccount", map[string]string{"address": address}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns the node's recently settled events.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var out []Event
	if err := c.call(ctx, "goal_events", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID.Add(1),
	}
	if params != nil {
		body.Params = []interface{}{params}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The node reports application errors with non-200 statuses but still
	// carries the JSON-RPC error object in the body.
	var rpcResp jsonRPCResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&rpcResp); decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rpc %s failed: status=%d", method, resp.StatusCode)
		}
		return decodeErr
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpc %s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("rpc returned empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}
