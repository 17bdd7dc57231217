package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// maxScanTokenSize is the maximum length of a single stdout line.
	maxScanTokenSize = 1024 * 1024 // 1MB

	// maxStderrBufferSize caps the retained stderr buffer. Draining
	// continues past the cap (the callback still sees every line) but the
	// buffer stops growing.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB
)

// ReadLines pumps raw lines from r into lines until EOF or context
// cancellation, then closes lines. Each sent slice is a private copy, safe
// to retain. Sends block when the channel is full; that blocking is the
// backpressure that keeps memory bounded regardless of output volume.
func ReadLines(ctx context.Context, log *slog.Logger, r io.Reader, lines chan<- []byte) error {
	defer close(lines)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	lineCount := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			log.Debug("Context canceled during stdout pump", "lines_read", lineCount)

			return ctx.Err()
		default:
		}

		// Scanner reuses its buffer between calls.
		line := append([]byte(nil), scanner.Bytes()...)
		lineCount++

		select {
		case lines <- line:
		case <-ctx.Done():
			log.Debug("Context canceled during line send", "lines_read", lineCount)

			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		log.Error("Scanner error while reading stdout", "error", err)

		return err
	}

	log.Debug("Stdout pump finished", "lines_read", lineCount)

	return nil
}

// StderrCollector drains a process's stderr, retaining a capped buffer for
// error reporting and streaming each line to an optional callback.
type StderrCollector struct {
	log      *slog.Logger
	callback func(string)

	mu  sync.Mutex
	buf strings.Builder
}

// NewStderrCollector creates a collector. callback may be nil.
func NewStderrCollector(log *slog.Logger, callback func(string)) *StderrCollector {
	return &StderrCollector{log: log, callback: callback}
}

// Drain reads r to EOF. It is meant to run as its own goroutine per run
// and must finish before the process is reaped.
func (c *StderrCollector) Drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()

		c.mu.Lock()

		if c.buf.Len() < maxStderrBufferSize {
			if c.buf.Len() > 0 {
				c.buf.WriteString("\n")
			}

			c.buf.WriteString(line)
		}

		c.mu.Unlock()

		if c.callback != nil {
			c.callback(line)
		}
	}

	if err := scanner.Err(); err != nil {
		// The process may simply have exited.
		c.log.Debug("Stderr scanner error", "error", err)
	}
}

// String returns the stderr captured so far.
func (c *StderrCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.String()
}
