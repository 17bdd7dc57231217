package supervisor

import (
	"log/slog"
	"time"

	"github.com/wagiedev/claude-supervisor-go/internal/store"
)

// DefaultEventBuffer is the default per-run event channel capacity. A
// full channel blocks the read loop (backpressure) rather than growing a
// queue.
const DefaultEventBuffer = 64

// Options configures a Supervisor.
type Options struct {
	// Logger receives operational logging. Nil means silent operation.
	Logger *slog.Logger

	// CliPath is an explicit path to the CLI binary, skipping discovery.
	CliPath string

	// SessionIDTimeout bounds session-id extraction. Zero means the
	// default (500ms).
	SessionIDTimeout time.Duration

	// EventBuffer is the per-run event channel capacity. Zero means
	// DefaultEventBuffer.
	EventBuffer int

	// Store, if set, records sessions and usage rows. The caller owns
	// the store and closes it.
	Store *store.Store

	// Env holds extra environment variables passed to every run.
	Env map[string]string

	// StderrCallback, if set, receives each line of child stderr.
	StderrCallback func(string)
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for operational output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCliPath sets the explicit path to the CLI binary.
// If not set, the binary is discovered via environment override, PATH,
// and OS-conventional install locations.
func WithCliPath(path string) Option {
	return func(o *Options) {
		o.CliPath = path
	}
}

// WithSessionIDTimeout sets the deadline for session-id extraction. On
// timeout the run continues under a synthetic id.
func WithSessionIDTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.SessionIDTimeout = timeout
	}
}

// WithEventBuffer sets the per-run event channel capacity.
func WithEventBuffer(size int) Option {
	return func(o *Options) {
		o.EventBuffer = size
	}
}

// WithStore enables the usage ledger. The supervisor records a session
// row when a session id is known and appends usage rows as updates
// arrive. Closing the store remains the caller's responsibility.
func WithStore(s *Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithEnv adds environment variables to every spawned run.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithStderrCallback streams each line of child stderr to fn.
func WithStderrCallback(fn func(string)) Option {
	return func(o *Options) {
		o.StderrCallback = fn
	}
}
