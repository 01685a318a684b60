package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"bullseye/core/types"
	"bullseye/crypto"
)

const (
	TypeGoalCreated   = "goal.created"
	TypeGoalSubmitted = "goal.submitted"
	TypeGoalVoteCast  = "goal.vote"
	TypeGoalFinalized = "goal.finalized"
	TypeGoalClaimed   = "goal.claimed"
	TypeGoalBurned    = "goal.burned"
	TypeGoalTreasury  = "goal.treasury"
	TypeGoalDirectory = "goal.directory_initialized"
)

type GoalCreated struct {
	ID        [32]byte
	Owner     [20]byte
	Sequence  uint64
	Amount    *big.Int
	Deadline  int64
	CreatedAt int64
}

func (GoalCreated) EventType() string { return TypeGoalCreated }

func (e GoalCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalCreated,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"owner":     crypto.NewAddress(crypto.ByePrefix, e.Owner[:]).String(),
			"sequence":  strconv.FormatUint(e.Sequence, 10),
			"amount":    formatAmount(e.Amount),
			"deadline":  intToString(e.Deadline),
			"createdAt": intToString(e.CreatedAt),
		},
	}
}

type GoalSubmitted struct {
	ID                   [32]byte
	Owner                [20]byte
	VerificationDeadline int64
}

func (GoalSubmitted) EventType() string { return TypeGoalSubmitted }

func (e GoalSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalSubmitted,
		Attributes: map[string]string{
			"id":                   hex.EncodeToString(e.ID[:]),
			"owner":                crypto.NewAddress(crypto.ByePrefix, e.Owner[:]).String(),
			"verificationDeadline": intToString(e.VerificationDeadline),
		},
	}
}

type GoalVoteCast struct {
	ID       [32]byte
	Arbiter  [20]byte
	Approve  bool
	YesCount uint8
	NoCount  uint8
}

func (GoalVoteCast) EventType() string { return TypeGoalVoteCast }

func (e GoalVoteCast) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalVoteCast,
		Attributes: map[string]string{
			"id":       hex.EncodeToString(e.ID[:]),
			"arbiter":  crypto.NewAddress(crypto.ByePrefix, e.Arbiter[:]).String(),
			"approve":  strconv.FormatBool(e.Approve),
			"yesCount": strconv.FormatUint(uint64(e.YesCount), 10),
			"noCount":  strconv.FormatUint(uint64(e.NoCount), 10),
		},
	}
}

type GoalFinalized struct {
	ID      [32]byte
	Outcome string
}

func (GoalFinalized) EventType() string { return TypeGoalFinalized }

func (e GoalFinalized) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalFinalized,
		Attributes: map[string]string{
			"id":      hex.EncodeToString(e.ID[:]),
			"outcome": e.Outcome,
		},
	}
}

type GoalClaimed struct {
	ID     [32]byte
	Owner  [20]byte
	Amount *big.Int
}

func (GoalClaimed) EventType() string { return TypeGoalClaimed }

func (e GoalClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalClaimed,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"owner":  crypto.NewAddress(crypto.ByePrefix, e.Owner[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

type GoalBurned struct {
	ID     [32]byte
	Amount *big.Int
}

func (GoalBurned) EventType() string { return TypeGoalBurned }

func (e GoalBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalBurned,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"amount": formatAmount(e.Amount),
		},
	}
}

type GoalTreasury struct {
	ID        [32]byte
	Amount    *big.Int
	Recipient [20]byte
}

func (GoalTreasury) EventType() string { return TypeGoalTreasury }

func (e GoalTreasury) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalTreasury,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"amount":    formatAmount(e.Amount),
			"recipient": crypto.NewAddress(crypto.ByePrefix, e.Recipient[:]).String(),
		},
	}
}

type DirectoryInitialized struct {
	Owner [20]byte
}

func (DirectoryInitialized) EventType() string { return TypeGoalDirectory }

func (e DirectoryInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeGoalDirectory,
		Attributes: map[string]string{
			"owner": crypto.NewAddress(crypto.ByePrefix, e.Owner[:]).String(),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return big.NewInt(v).String()
}
