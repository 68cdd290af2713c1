package blimp

import (
	"errors"
	"fmt"
)

var (
	// ErrAliasExists indicates an alias name is already registered
	// for the guild.
	ErrAliasExists = errors.New("alias already registered")

	// ErrAliasNotFound indicates no alias with the given name exists
	// for the guild.
	ErrAliasNotFound = errors.New("alias doesn't exist")

	// ErrWizardCanceled indicates a wizard session was canceled, either
	// by the acting user typing the cancel token, or by a privileged
	// user force-canceling the session. No further input is accepted.
	ErrWizardCanceled = errors.New("wizard canceled")

	// ErrWizardTimedOut indicates a wizard stage saw no qualifying input
	// within the configured window. No further input is accepted.
	ErrWizardTimedOut = errors.New("wizard timed out")

	// ErrUnauthorized indicates the acting user lacks the permissions
	// required for a command.
	ErrUnauthorized = errors.New("unauthorized")
)

// InvalidAliasError is returned when a user-supplied alias name fails
// the format rule: at least two characters, a leading apostrophe, and
// no whitespace anywhere in the name.
type InvalidAliasError struct {
	Alias  string
	Reason string
}

func (e *InvalidAliasError) Error() string {
	return fmt.Sprintf("invalid alias %q: %s", e.Alias, e.Reason)
}

// UnableToComplyError carries a direct, user-facing refusal. It wraps a
// sentinel (such as ErrAliasExists) so callers can branch with errors.Is
// while the command layer shows Message verbatim.
type UnableToComplyError struct {
	Message string
	Err     error
}

func (e *UnableToComplyError) Error() string {
	return e.Message
}

func (e *UnableToComplyError) Unwrap() error {
	return e.Err
}

func unableToComply(err error, format string, args ...any) error {
	return &UnableToComplyError{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
