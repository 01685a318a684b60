package goal

import "errors"

// Validation errors: caller input outside policy. The caller must correct the
// input and resubmit.
var (
	ErrTitleTooLong       = errors.New("goal: title must be 100 characters or less")
	ErrDescriptionTooLong = errors.New("goal: description must be 500 characters or less")
	ErrAmountTooLow       = errors.New("goal: amount below minimum stake")
	ErrAmountTooHigh      = errors.New("goal: amount above maximum stake")
	ErrDeadlineInPast     = errors.New("goal: deadline must be in the future")
	ErrInvalidArbiter     = errors.New("goal: arbiter address must not be empty")
)

// State errors: the operation is not valid in the record's current lifecycle
// position. The caller must re-read state before retrying.
var (
	ErrAlreadyInitialized       = errors.New("goal: directory already initialized")
	ErrActiveGoalExists         = errors.New("goal: owner already has an open goal")
	ErrInvalidGoalStatus        = errors.New("goal: invalid status for this operation")
	ErrAlreadyVoted             = errors.New("goal: arbiter already voted")
	ErrAlreadyFinalized         = errors.New("goal: ballot already finalized")
	ErrVerificationNotFinalized = errors.New("goal: ballot not finalized")
	ErrVerificationWindowOpen   = errors.New("goal: verification window still open")
)

// Authorization errors: the caller lacks the required role.
var (
	ErrUnauthorized = errors.New("goal: unauthorized")
	ErrNotAVerifier = errors.New("goal: caller is not a registered verifier")
)

// Lookup and infrastructure errors.
var (
	ErrDirectoryNotFound = errors.New("goal: directory not found")
	ErrGoalNotFound      = errors.New("goal: goal not found")
	ErrBallotNotFound    = errors.New("goal: ballot not found")
	ErrInsufficientFunds = errors.New("goal: insufficient balance")
)

var errNilState = errors.New("goal engine: state not configured")
