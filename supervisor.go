package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/claude-supervisor-go/internal/cli"
	"github.com/wagiedev/claude-supervisor-go/internal/errors"
	"github.com/wagiedev/claude-supervisor-go/internal/platform"
	"github.com/wagiedev/claude-supervisor-go/internal/registry"
	"github.com/wagiedev/claude-supervisor-go/internal/session"
	"github.com/wagiedev/claude-supervisor-go/internal/spawn"
	"github.com/wagiedev/claude-supervisor-go/internal/stream"
	"github.com/wagiedev/claude-supervisor-go/internal/usage"
)

// Supervisor spawns and supervises CLI processes. Safe for concurrent use.
type Supervisor struct {
	log     *slog.Logger
	opts    *Options
	plat    platform.Platform
	reg     *registry.Registry
	spawner *spawn.Spawner

	mu     sync.Mutex
	usages map[int64]*usage.Accumulator
	closed bool
}

// New creates a Supervisor.
func New(opts ...Option) (*Supervisor, error) {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	plat := platform.Current()

	disc := cli.NewDiscoverer(&cli.Config{
		CliPath:  options.CliPath,
		Platform: plat,
		Logger:   log,
	})

	reg := registry.New(registry.Config{
		Logger:   log,
		Platform: plat,
	})

	return &Supervisor{
		log:     log.With("component", "supervisor"),
		opts:    options,
		plat:    plat,
		reg:     reg,
		spawner: spawn.New(log, plat, disc, reg),
		usages:  make(map[int64]*usage.Accumulator),
	}, nil
}

// StartConversation starts a new conversation and returns the run id and
// the run's event channel. The first event is always SessionReady; the
// channel is closed after the terminal event.
//
// Canceling ctx after the run has started terminates it.
func (s *Supervisor) StartConversation(ctx context.Context, prompt, model, workingDirectory string) (int64, <-chan Event, error) {
	return s.start(ctx, spawn.Options{
		Prompt: prompt,
		Model:  model,
		Dir:    workingDirectory,
		Env:    s.opts.Env,
	})
}

// ResumeConversation resumes an existing conversation under sessionID.
// A run that fails before confirming the resume surfaces the failure as
// StreamError and Completed{IsError: true} on the event channel; the
// session can be retried under the same id.
func (s *Supervisor) ResumeConversation(ctx context.Context, sessionID, prompt, model, workingDirectory string) (int64, <-chan Event, error) {
	if !session.ValidID(sessionID) {
		return 0, nil, fmt.Errorf("invalid session id %q: want %d alphanumeric characters", sessionID, session.IDLength)
	}

	return s.start(ctx, spawn.Options{
		Prompt:          prompt,
		Model:           model,
		Dir:             workingDirectory,
		ResumeSessionID: sessionID,
		Env:             s.opts.Env,
	})
}

func (s *Supervisor) start(ctx context.Context, opts spawn.Options) (int64, <-chan Event, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return 0, nil, errors.ErrSupervisorClosed
	}

	s.mu.Unlock()

	run, err := s.spawner.Spawn(ctx, opts)
	if err != nil {
		return 0, nil, err
	}

	runID := run.Handle.RunID()

	acc := usage.NewAccumulator()

	s.mu.Lock()
	s.usages[runID] = acc
	s.mu.Unlock()

	buffer := s.opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	events := make(chan Event, buffer)

	go s.runLoop(ctx, run, opts, acc, events)

	return runID, events, nil
}

// Interrupt terminates a run. Interrupting a run that already finished is
// a no-op.
func (s *Supervisor) Interrupt(ctx context.Context, runID int64) error {
	return s.reg.Terminate(ctx, runID)
}

// ListActive returns a snapshot of all live runs, ordered by run id.
func (s *Supervisor) ListActive() []RunInfo {
	return s.reg.ListActive()
}

// UsageTotals returns the accumulated usage for a run. Totals remain
// readable after the run finishes, until the supervisor is closed.
func (s *Supervisor) UsageTotals(runID int64) (UsageTotals, error) {
	s.mu.Lock()
	acc, ok := s.usages[runID]
	s.mu.Unlock()

	if !ok {
		return UsageTotals{}, errors.ErrUnknownRun
	}

	return acc.Snapshot(), nil
}

// Close terminates every active run and releases resources. The
// supervisor rejects new runs from the moment Close begins.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.mu.Unlock()

	s.log.Info("Closing supervisor")

	return s.reg.Close(ctx)
}

// runLoop owns one run from spawn to channel close: it pumps the pipes,
// extracts the session id, parses the stream, folds usage, and finally
// reaps the process through the registry.
func (s *Supervisor) runLoop(ctx context.Context, run *spawn.Run, opts spawn.Options, acc *usage.Accumulator, events chan<- Event) {
	defer close(events)

	runID := run.Handle.RunID()
	log := s.log.With("run_id", runID)

	lines := make(chan []byte, 64)
	collector := stream.NewStderrCollector(log, s.opts.StderrCallback)

	var g errgroup.Group

	g.Go(func() error {
		return stream.ReadLines(ctx, log, run.Stdout, lines)
	})

	g.Go(func() error {
		collector.Drain(run.Stderr)

		return nil
	})

	// Session-id extraction races its deadline against the first lines of
	// stdout. Consumed lines are replayed to the parser below.
	extractor := session.NewExtractor(log, s.opts.SessionIDTimeout)
	result, replay := extractor.Extract(ctx, lines)

	if err := s.reg.AttachSessionID(runID, result.ID, result.Synthetic); err != nil {
		// The run is already gone; the exit path below reports it.
		log.Debug("Attaching session id failed", "error", err)
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.RecordSession(result.ID, opts.Model, opts.Dir, result.Synthetic); err != nil {
			log.Warn("Recording session failed", "error", err)
		}
	}

	// delivering flips false once the consumer's context is gone; the
	// loop keeps draining so the pumps and the reaper can finish.
	delivering := s.emit(ctx, runID, events, SessionReady{
		SessionID: result.ID,
		Synthetic: result.Synthetic,
	})

	parser := stream.NewParser(log)
	completedSeen := false

	handle := func(evs []stream.Event) {
		for _, ev := range evs {
			switch ev := ev.(type) {
			case stream.UsageUpdate:
				acc.Apply(ev.Model, ev.Counters)

				if s.opts.Store != nil {
					if err := s.opts.Store.RecordUsage(result.ID, ev.Model, ev.Counters); err != nil {
						log.Warn("Recording usage failed", "error", err)
					}
				}
			case stream.Completed:
				completedSeen = true
			}

			if delivering {
				delivering = s.emit(ctx, runID, events, ev)
			}
		}
	}

	for _, line := range replay {
		handle(parser.ProcessLine(line))
	}

	for line := range lines {
		handle(parser.ProcessLine(line))
	}

	// Wait for both pumps before releasing the reaper: Wait closes the
	// pipes, and stderr may still be mid-drain after stdout hits EOF.
	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		log.Warn("Stdout pump failed", "error", err)
	}

	run.Handle.MarkReadersDone()

	<-run.Handle.Done()

	exitErr := run.Handle.ExitErr()
	intentional := run.Handle.Intentional()

	status := StatusCompleted

	switch {
	case exitErr != nil && !intentional:
		exitCode := -1

		var execErr *exec.ExitError
		if stderrors.As(exitErr, &execErr) {
			exitCode = execErr.ExitCode()
		}

		procErr := &errors.ProcessError{
			ExitCode: exitCode,
			Stderr:   collector.String(),
			Err:      exitErr,
		}

		log.Error("Run exited unexpectedly", "exit_code", exitCode, "error", exitErr)

		if delivering {
			delivering = s.emit(ctx, runID, events, StreamError{Message: procErr.Error()})
		}

		if delivering && !completedSeen {
			s.emit(ctx, runID, events, Completed{IsError: true, Result: procErr.Error()})
		}

		status = StatusFailed

	case !completedSeen && !intentional:
		// Clean exit without a result line: close out the run explicitly
		// so the consumer always sees a terminal event.
		if delivering {
			s.emit(ctx, runID, events, Completed{})
		}

	case intentional:
		status = StatusFailed
		if completedSeen {
			status = StatusCompleted
		}

		log.Debug("Run terminated intentionally")
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.SetSessionStatus(result.ID, status); err != nil {
			log.Warn("Updating session status failed", "error", err)
		}
	}

	log.Info("Run finished", "session_id", result.ID, "status", status)
}

// emit delivers one event, blocking for channel capacity. If the
// consumer's context dies first, the run is terminated and delivery stops.
func (s *Supervisor) emit(ctx context.Context, runID int64, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		s.log.Debug("Consumer context done, terminating run", "run_id", runID)

		_ = s.reg.Terminate(context.Background(), runID)

		return false
	}
}
