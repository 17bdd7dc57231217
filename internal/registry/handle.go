package registry

import (
	"os/exec"
	"sync"
	"time"
)

// Handle tracks one spawned child process. The underlying process handle
// is exclusively owned by the registry: no other component may call
// OS-level kill or wait on it.
type Handle struct {
	runID     int64
	startedAt time.Time
	cmd       *exec.Cmd

	// readersDone is closed by the run loop once both pipe pumps have
	// finished. The reaper must not call Wait before then: Wait closes
	// the pipes out from under in-flight reads.
	readersDone chan struct{}

	// done is closed by the reaper after the process has been waited on.
	done chan struct{}

	mu          sync.Mutex
	sessionID   string
	synthetic   bool
	exitErr     error
	intentional bool
}

// RunID returns the registry-assigned run identifier.
func (h *Handle) RunID() int64 { return h.runID }

// PID returns the OS process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}

	return h.cmd.Process.Pid
}

// StartedAt returns when the run was registered.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// SessionID returns the current session id and whether it is synthetic.
// Empty until AttachSessionID runs.
func (h *Handle) SessionID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.sessionID, h.synthetic
}

// MarkReadersDone signals that stdout and stderr have been fully drained,
// releasing the reaper to wait on the process. Safe to call once.
func (h *Handle) MarkReadersDone() {
	close(h.readersDone)
}

// Done returns a channel closed once the process has exited and been
// reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the error from waiting on the process. Only meaningful
// after Done is closed; nil means a clean zero exit.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.exitErr
}

// Intentional reports whether the exit was requested via Terminate, as
// opposed to the child dying on its own.
func (h *Handle) Intentional() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.intentional
}

func (h *Handle) markIntentional() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.intentional = true
}

// Info is a point-in-time snapshot of a registered run.
type Info struct {
	RunID     int64
	SessionID string
	Synthetic bool
	PID       int
	StartedAt time.Time
}

func (h *Handle) info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Info{
		RunID:     h.runID,
		SessionID: h.sessionID,
		Synthetic: h.synthetic,
		PID:       h.PID(),
		StartedAt: h.startedAt,
	}
}
