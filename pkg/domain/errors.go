package domain

import "errors"

// Common domain errors. Specific errors wrap one of these so callers can
// classify a failure with errors.Is.
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrInvalidInput is returned for malformed or out-of-range caller input.
	// It is never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientBalance is returned when an outbound amount exceeds the
	// pool's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSettlementFailed is returned when the settlement rail rejects or
	// times out a transfer. The ledger is left unchanged.
	ErrSettlementFailed = errors.New("settlement failed")
	// ErrInvalidTransition is returned when a state machine receives an
	// operation its current state does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAllocationConfig is returned when pool allocation percentages are
	// missing or sum above 100.
	ErrAllocationConfig = errors.New("invalid allocation config")
	// ErrUnauthorized is returned when no operator identity is present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrImmutable is returned when a write would modify or remove a ledger transaction.
	ErrImmutable = errors.New("ledger transactions are immutable")
)
