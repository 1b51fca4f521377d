package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned for free text or attachments that arrive
	// while the chat has no wizard in progress.
	ErrNoSession = errors.New("no conversation in progress")

	// ErrNotOwner is returned when a user tries to edit or delete a reminder
	// someone else created.
	ErrNotOwner = errors.New("reminder belongs to another user")

	// ErrUnknownCommand is returned for commands the engine does not handle.
	ErrUnknownCommand = errors.New("unknown command")
)

// ValidationError reports input that does not fit the current step. The
// session stays on that step and the user is asked again.
type ValidationError struct {
	Field    string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: expected %s", e.Field, e.Expected)
}

func invalid(field, expected string) error {
	return &ValidationError{Field: field, Expected: expected}
}
