package core

import (
	"errors"
	"math/big"
	"testing"

	"bullseye/core/events"
	"bullseye/core/goal"
	"bullseye/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const nodeTestNow int64 = 1_700_000_000

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node := NewNode(storage.NewMemDB(), testAddr(0x54))
	node.SetNowFunc(func() int64 { return nodeTestNow })
	return node
}

func nodeTestInput() goal.CreateGoalInput {
	return goal.CreateGoalInput{
		Title:       "Read ten books",
		Description: "Finish the stack on the nightstand",
		Amount:      big.NewInt(goal.UnitsPerCoin / 2),
		Deadline:    nodeTestNow + 7*24*60*60,
		Route:       goal.RouteBurn,
		Arbiters: [goal.ArbiterCount][20]byte{
			testAddr(0xA1), testAddr(0xA2), testAddr(0xA3),
		},
	}
}

func TestNodeLifecycle(t *testing.T) {
	node := newTestNode(t)
	owner := testAddr(0x01)
	if err := node.Credit(owner, big.NewInt(goal.UnitsPerCoin)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := node.InitializeDirectory(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	g, err := node.CreateGoal(owner, nodeTestInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := node.RequestVerification(owner, g.ID); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if _, err := node.CastVote(testAddr(0xA1), g.ID, true); err != nil {
		t.Fatalf("vote 1: %v", err)
	}
	ballot, err := node.CastVote(testAddr(0xA2), g.ID, true)
	if err != nil {
		t.Fatalf("vote 2: %v", err)
	}
	if !ballot.Finalized || ballot.Outcome != goal.OutcomeSuccess {
		t.Fatalf("ballot not finalized success: %+v", ballot)
	}
	settled, err := node.Settle(owner, g.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != goal.StatusSettled {
		t.Fatalf("status = %s, want settled", settled.Status)
	}

	account, err := node.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(goal.UnitsPerCoin)) != 0 {
		t.Fatalf("owner balance = %s, want full refund", account.Balance)
	}

	// The settled goal is retained as history and the directory slot is free.
	if _, ok := node.GetGoal(g.ID); !ok {
		t.Fatal("settled goal must remain queryable")
	}
	dir, ok := node.GetDirectory(owner)
	if !ok || dir.OpenSequence != nil {
		t.Fatalf("directory after settle: %+v", dir)
	}
}

func TestNodeRollbackOnFailedOperation(t *testing.T) {
	node := newTestNode(t)
	owner := testAddr(0x01)
	if err := node.Credit(owner, big.NewInt(goal.UnitsPerCoin)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := node.InitializeDirectory(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	input := nodeTestInput()
	input.Deadline = nodeTestNow - 1
	if _, err := node.CreateGoal(owner, input); !errors.Is(err, goal.ErrDeadlineInPast) {
		t.Fatalf("expected ErrDeadlineInPast, got %v", err)
	}

	// Nothing from the rejected operation may be visible.
	dir, ok := node.GetDirectory(owner)
	if !ok || dir.TotalCreated != 0 {
		t.Fatalf("directory mutated by failed create: %+v", dir)
	}
	account, err := node.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(goal.UnitsPerCoin)) != 0 {
		t.Fatalf("funds moved by failed create: %s", account.Balance)
	}
	if _, ok := node.GetGoal(goal.GoalID(owner, 0)); ok {
		t.Fatal("goal record leaked from failed create")
	}
}

// flakyDB passes reads and single Puts through to an in-memory store but
// fails batch commits on demand.
type flakyDB struct {
	*storage.MemDB
	failBatch bool
}

func (db *flakyDB) WriteBatch(entries map[string][]byte) error {
	if db.failBatch {
		return errors.New("disk full")
	}
	return db.MemDB.WriteBatch(entries)
}

func TestNodeCommitFailureLeavesNoPartialState(t *testing.T) {
	db := &flakyDB{MemDB: storage.NewMemDB()}
	node := NewNode(db, testAddr(0x54))
	node.SetNowFunc(func() int64 { return nodeTestNow })

	owner := testAddr(0x01)
	if err := node.Credit(owner, big.NewInt(goal.UnitsPerCoin)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := node.InitializeDirectory(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	db.failBatch = true
	if _, err := node.CreateGoal(owner, nodeTestInput()); err == nil {
		t.Fatal("expected create to fail when the backing store rejects the commit")
	}
	db.failBatch = false

	// The stake debit and the new records live in the same batch; a failed
	// commit must surface neither half.
	account, err := node.GetAccount(owner)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance.Cmp(big.NewInt(goal.UnitsPerCoin)) != 0 {
		t.Fatalf("stake debited by failed commit: %s", account.Balance)
	}
	vault, err := node.GetAccount(goal.VaultAddress())
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vault.Balance.Sign() != 0 {
		t.Fatalf("vault credited by failed commit: %s", vault.Balance)
	}
	if _, ok := node.GetGoal(goal.GoalID(owner, 0)); ok {
		t.Fatal("goal record survived failed commit")
	}
	dir, ok := node.GetDirectory(owner)
	if !ok || dir.TotalCreated != 0 || dir.OpenSequence != nil {
		t.Fatalf("directory mutated by failed commit: %+v", dir)
	}
	if len(node.Events()) != 1 {
		t.Fatalf("events from failed commit leaked: %v", node.Events())
	}

	// The node stays usable once the store recovers.
	if _, err := node.CreateGoal(owner, nodeTestInput()); err != nil {
		t.Fatalf("create after recovery: %v", err)
	}
}

func TestNodeEventsOnlyAfterCommit(t *testing.T) {
	node := newTestNode(t)
	owner := testAddr(0x01)
	if err := node.Credit(owner, big.NewInt(goal.UnitsPerCoin)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := node.InitializeDirectory(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := node.CreateGoal(owner, nodeTestInput()); err != nil {
		t.Fatalf("create: %v", err)
	}

	evts := node.Events()
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[0].Type != events.TypeGoalDirectory || evts[1].Type != events.TypeGoalCreated {
		t.Fatalf("unexpected event sequence: %s, %s", evts[0].Type, evts[1].Type)
	}

	// A failing operation must not add events.
	if _, err := node.CreateGoal(owner, nodeTestInput()); !errors.Is(err, goal.ErrActiveGoalExists) {
		t.Fatalf("expected ErrActiveGoalExists, got %v", err)
	}
	if len(node.Events()) != 2 {
		t.Fatal("failed operation leaked events")
	}
}

func TestNodeFinalizeAfterWindow(t *testing.T) {
	node := newTestNode(t)
	owner := testAddr(0x01)
	if err := node.Credit(owner, big.NewInt(goal.UnitsPerCoin)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := node.InitializeDirectory(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	g, err := node.CreateGoal(owner, nodeTestInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := node.RequestVerification(owner, g.ID); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if _, err := node.CastVote(testAddr(0xA1), g.ID, true); err != nil {
		t.Fatalf("vote: %v", err)
	}

	node.SetNowFunc(func() int64 { return nodeTestNow + goal.VerificationWindow + 1 })
	ballot, err := node.FinalizeVerification(g.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if ballot.Outcome != goal.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", ballot.Outcome)
	}
}
