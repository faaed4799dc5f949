package service

import (
	"errors"
	"fmt"

	"cidermill-sync-server/internal/domain"
)

var (
	// ErrNotFound is returned when the requested press run, load, queue item
	// or conflict does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownStrategy is a configuration error: the caller asked for a
	// resolution strategy this resolver does not implement.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// ValidationError wraps a failed schema check. Saves that produce it are
// guaranteed to have written nothing; retrying without correcting the data
// will fail again.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a press run status change outside the
// allowed lifecycle.
type InvalidTransitionError struct {
	From domain.PressRunStatus
	To   domain.PressRunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
