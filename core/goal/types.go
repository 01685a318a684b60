package goal

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// UnitsPerCoin is the number of base units per whole coin. All amounts in
	// this package are denominated in base units.
	UnitsPerCoin = 1_000_000_000

	// MaxTitleLen and MaxDescriptionLen bound the user supplied metadata.
	MaxTitleLen       = 100
	MaxDescriptionLen = 500

	// ArbiterCount is the fixed size of every ballot's verifier panel and
	// QuorumThreshold the number of matching votes that finalizes it.
	ArbiterCount    = 3
	QuorumThreshold = 2

	// VerificationWindow is the number of seconds arbiters have to vote once
	// the owner submits the goal for verification.
	VerificationWindow int64 = 24 * 60 * 60
)

// MinStake and MaxStake bound the locked amount at creation, inclusive at both
// ends (0.1 and 10 whole coins).
var (
	MinStake = big.NewInt(UnitsPerCoin / 10)
	MaxStake = big.NewInt(10 * UnitsPerCoin)
)

// Status captures the lifecycle position of a goal. The terminal outcome
// (success vs failure) lives on the linked ballot, not here.
type Status uint8

const (
	StatusActive Status = iota
	StatusSubmitted
	StatusSettled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSubmitted, StatusSettled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSubmitted:
		return "submitted"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome is the finalized verdict of a ballot. OutcomeUnspecified marks a
// ballot that has not finalized yet and must never be persisted alongside
// Finalized == true.
type Outcome uint8

const (
	OutcomeUnspecified Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Valid reports whether the outcome is a finalized verdict.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unspecified"
	}
}

// FailureRoute selects where the locked amount goes when the ballot finalizes
// with a failure outcome.
type FailureRoute uint8

const (
	RouteBurn FailureRoute = iota
	RouteTreasury
)

// Valid reports whether the route value is within the supported range.
func (r FailureRoute) Valid() bool {
	switch r {
	case RouteBurn, RouteTreasury:
		return true
	default:
		return false
	}
}

func (r FailureRoute) String() string {
	switch r {
	case RouteBurn:
		return "burn"
	case RouteTreasury:
		return "treasury"
	default:
		return "unknown"
	}
}

// Directory tracks per-owner goal bookkeeping: how many goals the owner has
// ever created and which sequence (if any) is currently open. It is created
// once before the owner's first goal and never destroyed.
type Directory struct {
	Owner        [20]byte
	TotalCreated uint64
	// OpenSequence is the sequence number of the currently open goal, or nil
	// when the owner has no goal in a non-terminal status.
	OpenSequence *uint64
}

// Clone returns a deep copy of the directory.
func (d *Directory) Clone() *Directory {
	if d == nil {
		return nil
	}
	clone := *d
	if d.OpenSequence != nil {
		seq := *d.OpenSequence
		clone.OpenSequence = &seq
	}
	return &clone
}

// Goal is one commitment: metadata, the locked amount held in the module
// vault, the deadline, the failure routing policy and a link to its ballot.
// Settled goals are retained as immutable history.
type Goal struct {
	ID          [32]byte
	Owner       [20]byte
	Sequence    uint64
	Title       string
	Description string
	Amount      *big.Int
	Deadline    int64
	Route       FailureRoute
	Status      Status
	CreatedAt   int64
	Ballot      [32]byte
}

// Clone returns a deep copy of the goal so callers can safely mutate the copy
// without affecting the stored instance.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	clone := *g
	if g.Amount != nil {
		clone.Amount = new(big.Int).Set(g.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Ballot is the voting record for one goal: a fixed panel of three arbiters,
// per-position vote flags, running tallies and the finalization verdict.
type Ballot struct {
	ID                   [32]byte
	Goal                 [32]byte
	Arbiters             [ArbiterCount][20]byte
	VotesCast            [ArbiterCount]bool
	YesCount             uint8
	NoCount              uint8
	Finalized            bool
	Outcome              Outcome
	VerificationDeadline int64
}

// Clone returns a copy of the ballot. All fields are value types so the
// shallow copy is already deep.
func (b *Ballot) Clone() *Ballot {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// ArbiterIndex returns the ballot position of the given address, or -1 when
// the address is not on the panel. Duplicate panel entries resolve to the
// first matching position; the creation path knowingly does not reject
// duplicated arbiter addresses.
func (b *Ballot) ArbiterIndex(addr [20]byte) int {
	for i, arb := range b.Arbiters {
		if arb == addr {
			return i
		}
	}
	return -1
}

var (
	goalIDPrefix   = []byte("goal")
	ballotIDPrefix = []byte("ballot")
)

// GoalID derives the deterministic identifier of the goal created by owner at
// the given sequence number.
func GoalID(owner [20]byte, sequence uint64) [32]byte {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(goalIDPrefix, owner[:], seq[:]))
	return id
}

// BallotID derives the identifier of the ballot attached to a goal.
func BallotID(goalID [32]byte) [32]byte {
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(ballotIDPrefix, goalID[:]))
	return id
}

// VaultAddress is the module account holding every goal's locked amount until
// settlement. No private key exists for it.
func VaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("bullseye/goal-vault"))[12:])
	return addr
}

// BurnAddress is the fixed unrecoverable address failed stakes are routed to
// when the goal's failure route is burn.
func BurnAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("bullseye/incinerator"))[12:])
	return addr
}

// SanitizeGoal validates and normalises a goal record, returning a cloned
// instance with a non-nil amount. The function does not mutate the original.
func SanitizeGoal(g *Goal) (*Goal, error) {
	if g == nil {
		return nil, fmt.Errorf("goal: nil goal")
	}
	clone := g.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("goal: amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("goal: invalid status: %d", clone.Status)
	}
	if !clone.Route.Valid() {
		return nil, fmt.Errorf("goal: invalid failure route: %d", clone.Route)
	}
	if len(clone.Title) > MaxTitleLen {
		return nil, fmt.Errorf("goal: title exceeds %d characters", MaxTitleLen)
	}
	if len(clone.Description) > MaxDescriptionLen {
		return nil, fmt.Errorf("goal: description exceeds %d characters", MaxDescriptionLen)
	}
	return clone, nil
}

// SanitizeBallot validates ballot invariants before persistence: tallies stay
// within the panel size, the vote flags account for every tallied vote, and
// the outcome is set exactly when the ballot is finalized.
func SanitizeBallot(b *Ballot) (*Ballot, error) {
	if b == nil {
		return nil, fmt.Errorf("goal: nil ballot")
	}
	clone := b.Clone()
	cast := 0
	for _, voted := range clone.VotesCast {
		if voted {
			cast++
		}
	}
	if int(clone.YesCount)+int(clone.NoCount) != cast {
		return nil, fmt.Errorf("goal: ballot tallies do not match cast votes")
	}
	if clone.YesCount > ArbiterCount || clone.NoCount > ArbiterCount {
		return nil, fmt.Errorf("goal: ballot tally out of range")
	}
	if clone.Finalized != clone.Outcome.Valid() {
		return nil, fmt.Errorf("goal: ballot finalization and outcome disagree")
	}
	return clone, nil
}

// SanitizeDirectory validates directory invariants before persistence.
func SanitizeDirectory(d *Directory) (*Directory, error) {
	if d == nil {
		return nil, fmt.Errorf("goal: nil directory")
	}
	clone := d.Clone()
	if clone.OpenSequence != nil && *clone.OpenSequence >= clone.TotalCreated {
		return nil, fmt.Errorf("goal: open sequence %d outside created range", *clone.OpenSequence)
	}
	return clone, nil
}
