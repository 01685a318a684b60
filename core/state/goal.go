package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bullseye/core/goal"
)

var (
	directoryPrefix = []byte("goal-directory:")
	goalPrefix      = []byte("goal-record:")
	ballotPrefix    = []byte("goal-ballot:")
)

func directoryStorageKey(owner [20]byte) []byte {
	buf := make([]byte, len(directoryPrefix)+len(owner))
	copy(buf, directoryPrefix)
	copy(buf[len(directoryPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}

func goalStorageKey(id [32]byte) []byte {
	buf := make([]byte, len(goalPrefix)+len(id))
	copy(buf, goalPrefix)
	copy(buf[len(goalPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func ballotStorageKey(id [32]byte) []byte {
	buf := make([]byte, len(ballotPrefix)+len(id))
	copy(buf, ballotPrefix)
	copy(buf[len(ballotPrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

type storedDirectory struct {
	Owner        [20]byte
	TotalCreated uint64
	HasOpen      bool
	OpenSequence uint64
}

type storedGoal struct {
	ID          [32]byte
	Owner       [20]byte
	Sequence    uint64
	Title       string
	Description string
	Amount      []byte
	Deadline    uint64
	Route       uint8
	Status      uint8
	CreatedAt   uint64
	Ballot      [32]byte
}

type storedBallot struct {
	ID                   [32]byte
	Goal                 [32]byte
	Arbiters             [goal.ArbiterCount][20]byte
	VotesCast            [goal.ArbiterCount]bool
	YesCount             uint8
	NoCount              uint8
	Finalized            bool
	Outcome              uint8
	VerificationDeadline uint64
}

// DirectoryPut persists a per-owner goal directory.
func (m *Manager) DirectoryPut(d *goal.Directory) error {
	sanitized, err := goal.SanitizeDirectory(d)
	if err != nil {
		return err
	}
	stored := storedDirectory{
		Owner:        sanitized.Owner,
		TotalCreated: sanitized.TotalCreated,
	}
	if sanitized.OpenSequence != nil {
		stored.HasOpen = true
		stored.OpenSequence = *sanitized.OpenSequence
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode directory: %w", err)
	}
	m.put(directoryStorageKey(sanitized.Owner), encoded)
	return nil
}

// DirectoryGet loads a per-owner goal directory.
func (m *Manager) DirectoryGet(owner [20]byte) (*goal.Directory, bool) {
	data, ok, err := m.get(directoryStorageKey(owner))
	if err != nil || !ok {
		return nil, false
	}
	var stored storedDirectory
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false
	}
	dir := &goal.Directory{
		Owner:        stored.Owner,
		TotalCreated: stored.TotalCreated,
	}
	if stored.HasOpen {
		seq := stored.OpenSequence
		dir.OpenSequence = &seq
	}
	return dir, true
}

// GoalPut persists a goal record.
func (m *Manager) GoalPut(g *goal.Goal) error {
	sanitized, err := goal.SanitizeGoal(g)
	if err != nil {
		return err
	}
	stored := storedGoal{
		ID:          sanitized.ID,
		Owner:       sanitized.Owner,
		Sequence:    sanitized.Sequence,
		Title:       sanitized.Title,
		Description: sanitized.Description,
		Amount:      sanitized.Amount.Bytes(),
		Deadline:    uint64(sanitized.Deadline),
		Route:       uint8(sanitized.Route),
		Status:      uint8(sanitized.Status),
		CreatedAt:   uint64(sanitized.CreatedAt),
		Ballot:      sanitized.Ballot,
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode goal: %w", err)
	}
	m.put(goalStorageKey(sanitized.ID), encoded)
	return nil
}

// GoalGet loads a goal record by id.
func (m *Manager) GoalGet(id [32]byte) (*goal.Goal, bool) {
	data, ok, err := m.get(goalStorageKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var stored storedGoal
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false
	}
	g := &goal.Goal{
		ID:          stored.ID,
		Owner:       stored.Owner,
		Sequence:    stored.Sequence,
		Title:       stored.Title,
		Description: stored.Description,
		Deadline:    int64(stored.Deadline),
		Route:       goal.FailureRoute(stored.Route),
		Status:      goal.Status(stored.Status),
		CreatedAt:   int64(stored.CreatedAt),
		Ballot:      stored.Ballot,
	}
	g = g.Clone()
	g.Amount.SetBytes(stored.Amount)
	if !g.Status.Valid() || !g.Route.Valid() {
		return nil, false
	}
	return g, true
}

// BallotPut persists a ballot record.
func (m *Manager) BallotPut(b *goal.Ballot) error {
	sanitized, err := goal.SanitizeBallot(b)
	if err != nil {
		return err
	}
	stored := storedBallot{
		ID:                   sanitized.ID,
		Goal:                 sanitized.Goal,
		Arbiters:             sanitized.Arbiters,
		VotesCast:            sanitized.VotesCast,
		YesCount:             sanitized.YesCount,
		NoCount:              sanitized.NoCount,
		Finalized:            sanitized.Finalized,
		Outcome:              uint8(sanitized.Outcome),
		VerificationDeadline: uint64(sanitized.VerificationDeadline),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode ballot: %w", err)
	}
	m.put(ballotStorageKey(sanitized.ID), encoded)
	return nil
}

// BallotGet loads a ballot record by id.
func (m *Manager) BallotGet(id [32]byte) (*goal.Ballot, bool) {
	data, ok, err := m.get(ballotStorageKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var stored storedBallot
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false
	}
	b := &goal.Ballot{
		ID:                   stored.ID,
		Goal:                 stored.Goal,
		Arbiters:             stored.Arbiters,
		VotesCast:            stored.VotesCast,
		YesCount:             stored.YesCount,
		NoCount:              stored.NoCount,
		Finalized:            stored.Finalized,
		Outcome:              goal.Outcome(stored.Outcome),
		VerificationDeadline: int64(stored.VerificationDeadline),
	}
	if b.Finalized && !b.Outcome.Valid() {
		return nil, false
	}
	return b, true
}
