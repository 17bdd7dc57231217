package errors

import (
	"errors"
	"fmt"
)

// SupervisorError is the base interface for all supervisor errors.
type SupervisorError interface {
	error
	IsSupervisorError() bool
}

// Compile-time verification that all error types implement SupervisorError.
var (
	_ SupervisorError = (*CLINotFoundError)(nil)
	_ SupervisorError = (*SpawnError)(nil)
	_ SupervisorError = (*ProcessError)(nil)
	_ SupervisorError = (*JSONDecodeError)(nil)
	_ SupervisorError = (*TerminationError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrSupervisorClosed indicates the supervisor has been closed and cannot
	// start new runs.
	ErrSupervisorClosed = errors.New("supervisor closed")

	// ErrUnknownRun indicates the run id is not present in the registry.
	// Termination treats this as a no-op; lookups surface it to callers.
	ErrUnknownRun = errors.New("unknown run id")

	// ErrRegistryClosed indicates the registry is shutting down and rejects
	// new registrations.
	ErrRegistryClosed = errors.New("registry closed")

	// ErrVersionUnparseable indicates a CLI version probe produced output
	// with no recognizable semantic version.
	ErrVersionUnparseable = errors.New("unparseable CLI version output")

	// ErrFragmentOverflow indicates a multi-line JSON fragment exceeded the
	// parser's buffer cap and was dropped.
	ErrFragmentOverflow = errors.New("fragment buffer limit exceeded")

	// ErrTerminationFailed indicates a process survived the graceful
	// signal, the kill, and the kill retry.
	ErrTerminationFailed = errors.New("process survived kill retry")
)

// CLINotFoundError indicates the external CLI binary was not found.
// SearchedPaths lists every location that was tried, for diagnostics.
type CLINotFoundError struct {
	SearchedPaths []string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("claude CLI not found in: %v", e.SearchedPaths)
}

// IsSupervisorError implements SupervisorError.
func (e *CLINotFoundError) IsSupervisorError() bool { return true }

// SpawnError indicates the OS-level spawn of the CLI process failed.
// Unlike CLINotFoundError this is typically retryable after a delay.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn CLI process: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *SpawnError) IsSupervisorError() bool { return true }

// ProcessError indicates the CLI process exited unexpectedly.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	switch {
	case e.Err != nil && e.Stderr != "":
		return fmt.Sprintf("CLI process failed (exit %d): %v: %s", e.ExitCode, e.Err, e.Stderr)
	case e.Err != nil:
		return fmt.Sprintf("CLI process failed (exit %d): %v", e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("CLI process failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *ProcessError) IsSupervisorError() bool { return true }

// JSONDecodeError indicates a protocol line could not be decoded.
// These are recovered locally (the line is skipped); the error preserves the
// raw data that failed to parse.
type JSONDecodeError struct {
	RawData string
	Err     error
}

func (e *JSONDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON from CLI: %v", e.Err)
}

func (e *JSONDecodeError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *JSONDecodeError) IsSupervisorError() bool { return true }

// TerminationError indicates a process could not be terminated even after the
// forceful retry. The run is marked leaked for operator visibility.
type TerminationError struct {
	RunID int64
	PID   int
	Err   error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("failed to terminate run %d (pid %d): %v", e.RunID, e.PID, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}

// IsSupervisorError implements SupervisorError.
func (e *TerminationError) IsSupervisorError() bool { return true }
