package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestNotFound is returned when a result is submitted for a request
	// that is unknown, already fulfilled or expired
	ErrRequestNotFound = errors.New("request not found")
	// ErrNotInitialized is returned when no agent session is installed
	ErrNotInitialized = errors.New("agent not initialized")
	// ErrAlreadyInitialized is returned when a session is installed twice
	ErrAlreadyInitialized = errors.New("agent already initialized")
)

// StartupKind classifies agent server startup failures
type StartupKind string

const (
	StartupBind      StartupKind = "bind"
	StartupSpawn     StartupKind = "spawn"
	StartupTimeout   StartupKind = "timeout"
	StartupCancelled StartupKind = "cancelled"
	StartupClient    StartupKind = "client"
)

// StartupError is a fatal agent server startup failure
type StartupError struct {
	Kind     StartupKind
	Attempts int
	Err      error
}

func (e *StartupError) Error() string {
	switch e.Kind {
	case StartupTimeout:
		return fmt.Sprintf("agent server not ready after %d attempts: %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("agent server startup failed (%s): %v", e.Kind, e.Err)
	}
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsStartupKind reports whether err is a StartupError of the given kind
func IsStartupKind(err error, kind StartupKind) bool {
	var se *StartupError
	return errors.As(err, &se) && se.Kind == kind
}

// TransportError is an I/O failure talking to the agent server
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
