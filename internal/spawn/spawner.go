// Package spawn starts CLI processes: it resolves the binary, builds the
// ordered argument vector, wires stdio, and registers the child with the
// registry before any awaited work happens.
package spawn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/wagiedev/claude-supervisor-go/internal/cli"
	"github.com/wagiedev/claude-supervisor-go/internal/errors"
	"github.com/wagiedev/claude-supervisor-go/internal/platform"
	"github.com/wagiedev/claude-supervisor-go/internal/registry"
)

// Options describes one CLI invocation.
type Options struct {
	// Prompt is the user prompt. Prompts larger than the platform's
	// command-line budget are delivered over a stdin pipe instead.
	Prompt string

	// Model selects the model, if non-empty.
	Model string

	// Dir is the working directory for the child.
	Dir string

	// ResumeSessionID resumes an existing conversation, if non-empty.
	ResumeSessionID string

	// Env holds extra environment variables for the child.
	Env map[string]string
}

// Run is a started, registered CLI process with its output pipes. The
// pipes belong to the caller; the process itself belongs to the registry.
type Run struct {
	Handle *registry.Handle
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Spawner starts CLI processes.
type Spawner struct {
	log  *slog.Logger
	plat platform.Platform
	disc cli.Discoverer
	reg  *registry.Registry
}

// New creates a spawner.
func New(log *slog.Logger, plat platform.Platform, disc cli.Discoverer, reg *registry.Registry) *Spawner {
	return &Spawner{
		log:  log.With("component", "spawner"),
		plat: plat,
		disc: disc,
		reg:  reg,
	}
}

// Spawn resolves the binary, starts the process, and registers it. The
// registration happens synchronously between Start and everything else;
// by the time Spawn returns, the run is visible in the registry and
// killable. The process is started without a cancel-bound command so only
// the registry ever kills it.
func (s *Spawner) Spawn(ctx context.Context, opts Options) (*Run, error) {
	cliPath, err := s.disc.Discover(ctx)
	if err != nil {
		return nil, err
	}

	stdinMode := len(opts.Prompt) > s.plat.MaxPromptArgBytes()

	args := cli.BuildArgs(cli.Args{
		Prompt:          opts.Prompt,
		StdinPrompt:     stdinMode,
		Model:           opts.Model,
		ResumeSessionID: opts.ResumeSessionID,
	}, s.plat)

	s.log.Debug("Spawning CLI process",
		"cli_path", cliPath,
		"model", opts.Model,
		"resume", opts.ResumeSessionID != "",
		"stdin_mode", stdinMode,
		"dir", opts.Dir,
	)

	cmd := exec.Command(cliPath, args...)
	cmd.Dir = opts.Dir
	cmd.Env = cli.BuildEnvironment(opts.Env)

	var stdin io.WriteCloser

	if stdinMode {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, &errors.SpawnError{Err: fmt.Errorf("stdin pipe: %w", err)}
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &errors.SpawnError{Err: err}
	}

	// Registration must precede any other awaited operation so the run is
	// killable from the instant it exists.
	handle, err := s.reg.Register(cmd, opts.ResumeSessionID)
	if err != nil {
		// Registry refused (shutting down): this process has no owner,
		// reap it here.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return nil, err
	}

	s.log.Info("Spawned CLI process", "run_id", handle.RunID(), "pid", handle.PID())

	if stdinMode {
		go s.writePrompt(handle.RunID(), stdin, opts.Prompt)
	}

	return &Run{Handle: handle, Stdout: stdout, Stderr: stderr}, nil
}

// writePrompt delivers an oversized prompt over the stdin pipe and closes
// it. Runs in its own goroutine so a child that never reads stdin cannot
// wedge the spawn sequence.
func (s *Spawner) writePrompt(runID int64, stdin io.WriteCloser, prompt string) {
	defer func() {
		if err := stdin.Close(); err != nil {
			s.log.Debug("Closing stdin failed", "run_id", runID, "error", err)
		}
	}()

	if _, err := io.WriteString(stdin, prompt); err != nil {
		s.log.Warn("Writing prompt to stdin failed", "run_id", runID, "error", err)

		return
	}

	s.log.Debug("Delivered prompt via stdin", "run_id", runID, "bytes", len(prompt))
}
