package ledger

import "errors"

// Error kinds shared by every ledger operation. Callers add context with
// fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	// ErrNotFound indicates a referenced user, token, account or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor's role does not permit the operation on the target.
	ErrForbidden = errors.New("forbidden")
	// ErrInsufficientBalance indicates a weight increase exceeds the remaining tons.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidState indicates the record is in a state that does not allow the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)
