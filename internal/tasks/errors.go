package tasks

import (
	"errors"
	"fmt"

	"github.com/nhle/taskminder/internal/store"
)

// ErrNotFound is returned when the target task (or the user's whole
// collection) does not exist. It is the store sentinel, so errors.Is works
// across layers.
var ErrNotFound = store.ErrNotFound

// ValidationError reports a client-supplied field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err (or any error in its chain) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a store failure on a CRUD path.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// wrapStoreErr passes ErrNotFound through untouched and wraps anything
// else as a PersistenceError.
func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
