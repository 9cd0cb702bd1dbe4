package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLabel is returned for labels that are empty, too long or
	// contain anything outside [A-Za-z0-9_-].
	ErrInvalidLabel = errors.New("invalid label")

	// ErrNoSuchSession is returned by Connect when the session directory
	// does not exist.
	ErrNoSuchSession = errors.New("no such session")

	// ErrSessionBusy is returned when another process holds the session lock.
	ErrSessionBusy = errors.New("session is attached elsewhere")

	// ErrShellLaunch wraps failures to configure or start the shell.
	ErrShellLaunch = errors.New("shell launch failed")
)

// OpError records the verb and label of a failed operation.
type OpError struct {
	Op    string
	Label string
	Err   error
}

func (e *OpError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Label, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op, label string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Label: label, Err: err}
}

// Exit codes reported by the CLI. Shell exit statuses pass through
// unchanged, so these follow sysexits.h to stay out of the common range.
const (
	ExitFailure     = 1
	ExitUsage       = 64
	ExitInvalid     = 65
	ExitNoSession   = 66
	ExitLaunch      = 69
	ExitSessionBusy = 75
)

// ExitCode maps an error returned by the controller to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidLabel):
		return ExitInvalid
	case errors.Is(err, ErrNoSuchSession):
		return ExitNoSession
	case errors.Is(err, ErrSessionBusy):
		return ExitSessionBusy
	case errors.Is(err, ErrShellLaunch):
		return ExitLaunch
	}
	return ExitFailure
}
