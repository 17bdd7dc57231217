package registry

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/claude-supervisor-go/internal/errors"
	"github.com/wagiedev/claude-supervisor-go/internal/platform"
)

const (
	// DefaultGraceTimeout is how long each termination phase waits for
	// the process to exit before escalating.
	DefaultGraceTimeout = 2 * time.Second

	// DefaultSweepInterval is how often the background sweep retries
	// killing leaked processes.
	DefaultSweepInterval = 30 * time.Second
)

// Config holds registry configuration.
type Config struct {
	Logger        *slog.Logger
	Platform      platform.Platform
	GraceTimeout  time.Duration
	SweepInterval time.Duration
}

// Registry tracks every spawned child process and guarantees each one is
// eventually gone: on normal exit the reaper removes it, on Terminate it
// is signaled and escalated to a kill, and anything that survives even the
// kill retry is marked leaked and retried by a background sweep.
type Registry struct {
	log   *slog.Logger
	plat  platform.Platform
	grace time.Duration

	nextID atomic.Int64

	mu        sync.Mutex
	runs      map[int64]*Handle
	bySession map[string]int64
	leaked    map[int]int64 // pid -> run id
	closed    bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a registry and starts its background sweep.
func New(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	plat := cfg.Platform
	if plat == nil {
		plat = platform.Current()
	}

	grace := cfg.GraceTimeout
	if grace <= 0 {
		grace = DefaultGraceTimeout
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	r := &Registry{
		log:       log.With("component", "registry"),
		plat:      plat,
		grace:     grace,
		runs:      make(map[int64]*Handle),
		bySession: make(map[string]int64),
		leaked:    make(map[int]int64),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go r.sweep(interval)

	return r
}

// Register records a freshly started process and returns its handle. It
// performs map mutation only, no I/O, so it is safe to call synchronously
// between spawn and any awaited work. sessionID may be empty when the id
// is not yet known; AttachSessionID fills it in later.
//
// If sessionID is already owned by another run, the older run is evicted
// from the indices and killed before the new registration is visible: two
// runs for one session are mutually exclusive.
func (r *Registry) Register(cmd *exec.Cmd, sessionID string) (*Handle, error) {
	h := &Handle{
		runID:       r.nextID.Add(1),
		startedAt:   time.Now(),
		cmd:         cmd,
		sessionID:   sessionID,
		readersDone: make(chan struct{}),
		done:        make(chan struct{}),
	}

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil, errors.ErrRegistryClosed
	}

	r.runs[h.runID] = h

	if sessionID != "" {
		if evicted := r.evictSessionLocked(sessionID, h.runID); evicted != nil {
			r.killEvicted(evicted)
		}

		r.bySession[sessionID] = h.runID
	}

	r.mu.Unlock()

	r.log.Debug("Registered run", "run_id", h.runID, "pid", h.PID(), "session_id", sessionID)

	go r.reap(h)

	return h, nil
}

// AttachSessionID records the extracted session id for a run. Conflicting
// older runs for the same session are evicted as in Register.
func (r *Registry) AttachSessionID(runID int64, sessionID string, synthetic bool) error {
	r.mu.Lock()

	h, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()

		return errors.ErrUnknownRun
	}

	h.mu.Lock()

	if h.sessionID != "" && r.bySession[h.sessionID] == runID {
		delete(r.bySession, h.sessionID)
	}

	h.sessionID = sessionID
	h.synthetic = synthetic
	h.mu.Unlock()

	if evicted := r.evictSessionLocked(sessionID, runID); evicted != nil {
		r.killEvicted(evicted)
	}

	r.bySession[sessionID] = runID

	r.mu.Unlock()

	r.log.Debug("Attached session id", "run_id", runID, "session_id", sessionID, "synthetic", synthetic)

	return nil
}

// evictSessionLocked removes any other run holding sessionID from the
// session index and returns it for killing. Caller holds r.mu.
func (r *Registry) evictSessionLocked(sessionID string, keepRunID int64) *Handle {
	oldID, ok := r.bySession[sessionID]
	if !ok || oldID == keepRunID {
		return nil
	}

	delete(r.bySession, sessionID)

	old, ok := r.runs[oldID]
	if !ok {
		return nil
	}

	r.log.Warn("Evicting older run for session", "session_id", sessionID, "old_run_id", oldID, "new_run_id", keepRunID)

	return old
}

// killEvicted forcefully terminates a run that lost its session to a newer
// one. No graceful phase: the session has already moved on. Kill is a
// non-awaiting syscall, so this runs inline under r.mu before the new
// index entry is published.
func (r *Registry) killEvicted(h *Handle) {
	h.markIntentional()

	if err := h.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		r.log.Error("Failed to kill evicted run", "run_id", h.runID, "pid", h.PID(), "error", err)
	}
}

// reap waits for the run's readers to finish, then waits on the process
// and removes the run from the indices. Calling Wait before the readers
// are done would close the stdout pipe under an in-flight read.
func (r *Registry) reap(h *Handle) {
	<-h.readersDone

	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()

	close(h.done)

	r.mu.Lock()

	delete(r.runs, h.runID)
	delete(r.leaked, h.PID())

	h.mu.Lock()
	if h.sessionID != "" && r.bySession[h.sessionID] == h.runID {
		delete(r.bySession, h.sessionID)
	}
	h.mu.Unlock()

	r.mu.Unlock()

	r.log.Debug("Reaped run", "run_id", h.runID, "pid", h.PID(), "exit_err", err)
}

// Lookup returns the handle for runID.
func (r *Registry) Lookup(runID int64) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.runs[runID]
	if !ok {
		return nil, errors.ErrUnknownRun
	}

	return h, nil
}

// ListActive returns a snapshot of all registered runs, ordered by run id.
func (r *Registry) ListActive() []Info {
	r.mu.Lock()

	infos := make([]Info, 0, len(r.runs))
	for _, h := range r.runs {
		infos = append(infos, h.info())
	}

	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].RunID < infos[j].RunID })

	return infos
}

// Terminate ends the run: graceful signal first where the platform has
// one, then a kill, then one kill retry, each phase bounded by the grace
// timeout. A run that survives all three is marked leaked, dropped from
// the indices, and left to the background sweep.
//
// Terminating an unknown (already exited) run is a no-op, so Terminate is
// safe to call concurrently with natural process exit.
func (r *Registry) Terminate(ctx context.Context, runID int64) error {
	r.mu.Lock()
	h, ok := r.runs[runID]
	r.mu.Unlock()

	if !ok {
		return nil
	}

	h.markIntentional()

	pid := h.PID()

	if sig := r.plat.GracefulSignal(); sig != nil {
		r.log.Debug("Sending graceful signal", "run_id", runID, "pid", pid, "signal", sig)

		if err := h.cmd.Process.Signal(sig); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			r.log.Debug("Graceful signal failed", "run_id", runID, "error", err)
		}

		if r.awaitExit(h) {
			return nil
		}

		r.log.Warn("Run ignored graceful signal, killing", "run_id", runID, "pid", pid)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if err := h.cmd.Process.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
			r.log.Error("Kill failed", "run_id", runID, "pid", pid, "attempt", attempt, "error", err)
		}

		if r.awaitExit(h) {
			return nil
		}
	}

	// The process survived the kill retry. Mark it leaked so the sweep
	// keeps trying, and drop it from the indices.
	r.mu.Lock()

	r.leaked[pid] = runID
	delete(r.runs, runID)

	h.mu.Lock()
	if h.sessionID != "" && r.bySession[h.sessionID] == runID {
		delete(r.bySession, h.sessionID)
	}
	h.mu.Unlock()

	r.mu.Unlock()

	r.log.Error("Run leaked: process survived kill retry", "run_id", runID, "pid", pid)

	return &errors.TerminationError{RunID: runID, PID: pid, Err: errors.ErrTerminationFailed}
}

// awaitExit waits up to the grace timeout for the run to be reaped.
func (r *Registry) awaitExit(h *Handle) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(r.grace):
		return false
	}
}

// Close terminates every registered run and stops the sweep. New
// registrations are rejected from the moment Close begins.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true

	ids := make([]int64, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}

	r.mu.Unlock()

	r.log.Debug("Closing registry", "active_runs", len(ids))

	var errs []error

	for _, id := range ids {
		if err := r.Terminate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	close(r.sweepStop)
	<-r.sweepDone

	return stderrors.Join(errs...)
}

// sweep retries killing leaked processes until they are confirmed gone.
func (r *Registry) sweep(interval time.Duration) {
	defer close(r.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.sweepStop:
			return
		case <-ticker.C:
			r.sweepLeaked()
		}
	}
}

func (r *Registry) sweepLeaked() {
	r.mu.Lock()

	pids := make(map[int]int64, len(r.leaked))
	for pid, runID := range r.leaked {
		pids[pid] = runID
	}

	r.mu.Unlock()

	for pid, runID := range pids {
		proc, err := os.FindProcess(pid)
		if err != nil {
			r.dropLeaked(pid)

			continue
		}

		if err := proc.Kill(); err != nil {
			// ErrProcessDone (or an already-reaped pid on Windows) means
			// the process is finally gone.
			r.log.Debug("Leaked process gone", "run_id", runID, "pid", pid, "error", err)
			r.dropLeaked(pid)

			continue
		}

		r.log.Warn("Retried kill of leaked process", "run_id", runID, "pid", pid)
	}
}

func (r *Registry) dropLeaked(pid int) {
	r.mu.Lock()
	delete(r.leaked, pid)
	r.mu.Unlock()
}
