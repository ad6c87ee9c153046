package models

import (
	"errors"
	"fmt"
)

// Operation error kinds. Conflict is the only kind retried internally;
// everything else propagates unchanged to the caller. No operation
// partially commits — every error leaves the store at its pre-operation
// state.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrCompanyInactive   = errors.New("company is inactive")
	ErrDuplicateActive   = errors.New("student already has an active entry for this company")
	ErrAlreadyInProgress = errors.New("company already has an interview in progress")
	ErrAtHead            = errors.New("entry holds position 1; cancel instead of rescheduling")
	ErrNotHead           = errors.New("entry does not hold position 1")
	ErrConflict          = errors.New("store conflict")
	ErrTransientStore    = errors.New("store unavailable after retries")
	ErrTimeout           = errors.New("operation deadline exceeded")
	ErrIllegalTransition = errors.New("illegal transition")
)

// IllegalTransitionError carries the entry's current state for diagnostics.
// It matches ErrIllegalTransition under errors.Is.
type IllegalTransitionError struct {
	EntryID   string
	Current   EntryStatus
	Operation string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("entry %s: cannot %s while %s", e.EntryID, e.Operation, e.Current)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// NewIllegalTransition builds an IllegalTransitionError for an entry.
func NewIllegalTransition(entryID string, current EntryStatus, operation string) error {
	return &IllegalTransitionError{EntryID: entryID, Current: current, Operation: operation}
}

// IsRetryable reports whether the error is a transient conflict the engine
// may retry with fresh reads.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
