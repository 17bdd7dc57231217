package supervisor

import (
	"github.com/wagiedev/claude-supervisor-go/internal/errors"
)

// SupervisorError is the base interface implemented by all typed errors
// returned from this package.
type SupervisorError = errors.SupervisorError

// Typed errors. Inspect with errors.As.
type (
	// CLINotFoundError means the CLI binary was not found; SearchedPaths
	// lists every location that was tried.
	CLINotFoundError = errors.CLINotFoundError

	// SpawnError means the OS-level process start failed.
	SpawnError = errors.SpawnError

	// ProcessError means the CLI process exited unexpectedly. It carries
	// the exit code and captured stderr.
	ProcessError = errors.ProcessError

	// JSONDecodeError means a protocol line could not be decoded. These
	// are recovered locally; the raw line is preserved for diagnostics.
	JSONDecodeError = errors.JSONDecodeError

	// TerminationError means a process survived even the forceful kill
	// retry and has been marked leaked.
	TerminationError = errors.TerminationError
)

// Sentinel errors. Inspect with errors.Is.
var (
	// ErrSupervisorClosed is returned when starting a run on a closed
	// supervisor.
	ErrSupervisorClosed = errors.ErrSupervisorClosed

	// ErrUnknownRun is returned by lookups for a run id that is not
	// registered (the run may simply have finished).
	ErrUnknownRun = errors.ErrUnknownRun
)
