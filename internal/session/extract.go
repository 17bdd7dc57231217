package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultTimeout is the default extraction deadline. The init line arrives
// within tens of milliseconds on a healthy spawn; anything slower is treated
// as degraded and a synthetic id is issued.
const DefaultTimeout = 500 * time.Millisecond

// Result is the outcome of session-id extraction.
type Result struct {
	// ID is the session identifier, always 26 alphanumeric characters.
	ID string

	// Synthetic is true when the id was generated locally because the
	// child never reported one within the deadline. Such a session cannot
	// be resumed under its real identity.
	Synthetic bool
}

// initLine is the minimal shape of the child's announcement line.
type initLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// Extractor recovers the session id from the first lines of child stdout.
type Extractor struct {
	log     *slog.Logger
	timeout time.Duration
}

// NewExtractor creates an extractor with the given deadline. A zero or
// negative timeout falls back to DefaultTimeout.
func NewExtractor(log *slog.Logger, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Extractor{
		log:     log.With("component", "session"),
		timeout: timeout,
	}
}

// Extract reads lines until it finds a system/init line carrying a valid
// session id, or the deadline elapses. Extraction is lookahead-only: every
// consumed line is returned as replay so downstream parsing loses nothing,
// including the init line itself.
//
// Lines with a malformed or wrong-length id are skipped rather than
// accepted; reading continues until the deadline. On timeout, channel
// close, or context cancellation a synthetic id is issued and a degraded-
// mode warning is logged.
func (e *Extractor) Extract(ctx context.Context, lines <-chan []byte) (Result, [][]byte) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var replay [][]byte

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return e.degraded("stdout closed before init line", replay)
			}

			replay = append(replay, line)

			if id, ok := parseInitLine(line); ok {
				if !ValidID(id) {
					e.log.Warn("Ignoring malformed session id", "session_id", id)

					continue
				}

				e.log.Debug("Extracted session id", "session_id", id)

				return Result{ID: id}, replay
			}

		case <-timer.C:
			return e.degraded("deadline elapsed before init line", replay)

		case <-ctx.Done():
			return e.degraded("context canceled during extraction", replay)
		}
	}
}

func (e *Extractor) degraded(reason string, replay [][]byte) (Result, [][]byte) {
	id := SyntheticID()
	e.log.Warn("Session id extraction degraded, using synthetic id",
		"reason", reason,
		"session_id", id,
		"timeout", e.timeout,
	)

	return Result{ID: id, Synthetic: true}, replay
}

// parseInitLine reports whether line is a system/init announcement and
// returns its session id.
func parseInitLine(line []byte) (string, bool) {
	var init initLine
	if err := json.Unmarshal(line, &init); err != nil {
		return "", false
	}

	if init.Type != "system" || init.Subtype != "init" || init.SessionID == "" {
		return "", false
	}

	return init.SessionID, true
}
