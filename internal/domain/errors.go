package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound signals a missing tenant account.
	ErrAccountNotFound = errors.New("tenant account not found")
	// ErrAccountExists signals a duplicate tenant account.
	ErrAccountExists = errors.New("tenant account already exists")
	// ErrEntryNotFound signals a missing ledger entry.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrUnknownAction signals an action kind absent from the cost table.
	ErrUnknownAction = errors.New("unknown action kind")
	// ErrUnknownPlan signals a plan id absent from the plan catalog.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrValidation signals a malformed request (missing tenant id, bad quantity).
	ErrValidation = errors.New("validation failed")

	// ErrVersionConflict signals an optimistic-concurrency collision on an account write.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrDuplicateReference signals an external reference that was already applied.
	ErrDuplicateReference = errors.New("external reference already applied")
	// ErrBadSignature signals a webhook payload that failed signature verification.
	ErrBadSignature = errors.New("webhook signature verification failed")
)

// VersionConflictError wraps ErrVersionConflict with the versions seen by the writer.
type VersionConflictError struct {
	Expected int64
	Current  int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: expected version %d, current is %d",
		ErrVersionConflict.Error(), e.Expected, e.Current)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NewVersionConflict creates a version conflict error.
func NewVersionConflict(expected, current int64) error {
	return &VersionConflictError{Expected: expected, Current: current}
}
