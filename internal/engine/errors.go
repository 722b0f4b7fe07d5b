package engine

import (
	"errors"

	"streamd/internal/store"
)

// ValidationError rejects a request before any task record is created.
type ValidationError struct{ Msg string }

func (e ValidationError) Error() string { return e.Msg }

func errValidation(msg string) error { return ValidationError{Msg: msg} }

// IsValidation reports whether err is a request validation failure (400).
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err means the task id is unknown (404).
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// ErrNotOwner is returned when a session operation names a task that belongs
// to a different owner.
var ErrNotOwner = errors.New("task does not belong to owner")

// persistFailure marks a storage write error inside the generation loop so it
// can be told apart from provider failures. Persistence errors are always
// fatal to the task: retrying could break the ledger's contiguity.
type persistFailure struct{ err error }

func (e persistFailure) Error() string { return "persistence failure: " + e.err.Error() }
func (e persistFailure) Unwrap() error { return e.err }

func isPersistFailure(err error) bool {
	var pf persistFailure
	return errors.As(err, &pf)
}
