package core

import (
	"errors"
	"fmt"

	"osce-simulator/pkg"
)

var (
	// ErrInvalidState is returned when a command is not allowed in the
	// current phase.  The session is left unchanged.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound is returned for an unknown case id.
	ErrNotFound = errors.New("not found")
	// ErrUnknownSession is returned by the registry for an unknown id.
	ErrUnknownSession = errors.New("unknown session")
	// ErrEmptyQuestion is returned when the trainee sends a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrEmptySubmission is returned when diagnosis or plan is blank.
	ErrEmptySubmission = errors.New("please fill out both the differential diagnosis and the management plan")
)

// CredentialError reports an API key rejected at validation.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("invalid API key, please try again: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

func invalidState(command string, phase pkg.Phase) error {
	return fmt.Errorf("%w: %s is not allowed in phase %s", ErrInvalidState, command, phase)
}
