// Package stream turns the child's newline-delimited JSON output into
// typed events.
//
// The parser is a small state machine: complete single-line JSON objects
// yield events immediately; partial objects accumulate in a bounded
// fragment buffer until brace depth returns to zero. A line consisting
// solely of the terminator character ends the stream logically. Malformed
// input becomes a parse-error event, never a stream failure.
//
// The pumps read raw bytes from the child's pipes. Stdout lines go to a
// bounded channel whose blocking sends provide backpressure; stderr is
// collected with a hard cap for error reporting.
package stream
