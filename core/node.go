package core

import (
	"fmt"
	"math/big"
	"sync"

	"bullseye/core/events"
	"bullseye/core/goal"
	"bullseye/core/state"
	"bullseye/core/types"
	"bullseye/storage"
)

const maxRetainedEvents = 256

// Node owns the database and the goal engine and serialises every state
// mutation. Each operation runs against a fresh state overlay: on success the
// overlay commits as a unit, on error it is discarded, so callers never
// observe a partially applied operation.
type Node struct {
	db       storage.Database
	treasury [20]byte
	nowFn    func() int64

	mu     sync.Mutex
	recent []*types.Event
}

// NewNode creates a node on top of the given database. The treasury address
// receives failed stakes routed away from the burn address.
func NewNode(db storage.Database, treasury [20]byte) *Node {
	return &Node{db: db, treasury: treasury}
}

// SetNowFunc overrides the time source for every subsequent operation.
// Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowFn = now
}

type eventBuffer struct {
	buffered []events.Event
}

func (b *eventBuffer) Emit(evt events.Event) { b.buffered = append(b.buffered, evt) }

// payloadEvent is satisfied by every typed event in core/events.
type payloadEvent interface {
	events.Event
	Event() *types.Event
}

func (n *Node) newEngine(manager *state.Manager, buffer *eventBuffer) *goal.Engine {
	engine := goal.NewEngine()
	engine.SetState(manager)
	engine.SetTreasury(n.treasury)
	engine.SetEmitter(buffer)
	if n.nowFn != nil {
		engine.SetNowFunc(n.nowFn)
	}
	return engine
}

// withEngine runs fn against a fresh overlay and commits it on success.
// Events emitted by the engine become visible only after the commit.
func (n *Node) withEngine(fn func(*goal.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	manager := state.NewManager(n.db)
	buffer := &eventBuffer{}
	engine := n.newEngine(manager, buffer)
	if err := fn(engine); err != nil {
		manager.Discard()
		return err
	}
	if err := manager.Commit(); err != nil {
		manager.Discard()
		return err
	}
	for _, evt := range buffer.buffered {
		if typed, ok := evt.(payloadEvent); ok {
			n.recent = append(n.recent, typed.Event())
		}
	}
	if len(n.recent) > maxRetainedEvents {
		n.recent = n.recent[len(n.recent)-maxRetainedEvents:]
	}
	return nil
}

// InitializeDirectory creates the caller's goal directory.
func (n *Node) InitializeDirectory(caller [20]byte) (*goal.Directory, error) {
	var dir *goal.Directory
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		dir, innerErr = engine.InitializeDirectory(caller)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// CreateGoal locks the stake and creates a goal with its ballot.
func (n *Node) CreateGoal(caller [20]byte, input goal.CreateGoalInput) (*goal.Goal, error) {
	var created *goal.Goal
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		created, innerErr = engine.CreateGoal(caller, input)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RequestVerification submits an active goal to its arbiter panel.
func (n *Node) RequestVerification(caller [20]byte, goalID [32]byte) (*goal.Goal, error) {
	var updated *goal.Goal
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		updated, innerErr = engine.RequestVerification(caller, goalID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CastVote records an arbiter's verdict on the goal's ballot.
func (n *Node) CastVote(caller [20]byte, goalID [32]byte, approve bool) (*goal.Ballot, error) {
	var ballot *goal.Ballot
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		ballot, innerErr = engine.CastVote(caller, goalID, approve)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return ballot, nil
}

// FinalizeVerification closes a ballot whose voting window elapsed.
func (n *Node) FinalizeVerification(goalID [32]byte) (*goal.Ballot, error) {
	var ballot *goal.Ballot
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		ballot, innerErr = engine.FinalizeVerification(goalID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return ballot, nil
}

// Settle releases the locked stake per the finalized ballot.
func (n *Node) Settle(caller [20]byte, goalID [32]byte) (*goal.Goal, error) {
	var settled *goal.Goal
	err := n.withEngine(func(engine *goal.Engine) error {
		var innerErr error
		settled, innerErr = engine.Settle(caller, goalID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// GetDirectory returns the owner's directory, if initialized.
func (n *Node) GetDirectory(owner [20]byte) (*goal.Directory, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.db).DirectoryGet(owner)
}

// GetGoal returns the goal record for an id.
func (n *Node) GetGoal(id [32]byte) (*goal.Goal, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.db).GoalGet(id)
}

// GetBallot returns the ballot record for an id.
func (n *Node) GetBallot(id [32]byte) (*goal.Ballot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.db).BallotGet(id)
}

// GetAccount returns the ledger account for an address.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.db).GetAccount(addr[:])
}

// Credit adds funds to an account. It backs faucet-style funding for local
// networks; a production deployment funds accounts through the ledger.
func (n *Node) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("core: credit amount must be non-negative")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	manager := state.NewManager(n.db)
	account, err := manager.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.Balance.Add(account.Balance, amount)
	if err := manager.PutAccount(addr[:], account); err != nil {
		return err
	}
	return manager.Commit()
}

// Events returns the most recent committed events, newest last.
func (n *Node) Events() []*types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Event, len(n.recent))
	copy(out, n.recent)
	return out
}
