package bankroll

import "errors"

// Error taxonomy. Store implementations and the service wrap these
// sentinels with fmt.Errorf("...: %w", ...) so callers can branch with
// errors.Is while still seeing which account, date or id failed.
var (
	// ErrNotFound reports an unknown account name or record id.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAccount reports an account name collision on creation.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrInvalidInput reports input rejected before any write: a negative
	// balance, a negative tournament count, a missing date or name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrity reports a storage failure inside a multi-step mutation.
	// The whole mutation is rolled back; nothing is partially applied.
	ErrIntegrity = errors.New("integrity violation")

	// ErrConflict reports two writers racing on the same (account, date)
	// key, or an update that would collide with an existing key.
	ErrConflict = errors.New("concurrent conflict")
)
