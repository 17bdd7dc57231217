package session

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"01ARZ3NDEKTSV4RRFFQ69G5FAV", true},
		{"abcdefghijklmnopqrstuvwxyz", true},
		{"ABCDEFGHIJ0123456789abcdef", true},
		{"", false},
		{"short", false},
		{strings.Repeat("a", 25), false},
		{strings.Repeat("a", 27), false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA-", false},
		{"01ARZ3NDEKTSV4RRFFQ69G5FA ", false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ValidID(tt.id), "id=%q", tt.id)
	}
}

func TestSyntheticIDShape(t *testing.T) {
	a := SyntheticID()
	b := SyntheticID()

	require.True(t, ValidID(a))
	require.True(t, ValidID(b))
	require.NotEqual(t, a, b)
}

func feed(lines ...string) chan []byte {
	ch := make(chan []byte, len(lines))
	for _, line := range lines {
		ch <- []byte(line)
	}

	return ch
}

func TestExtract_RealID(t *testing.T) {
	lines := feed(`{"type":"system","subtype":"init","session_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV"}`)

	extractor := NewExtractor(slog.Default(), time.Second)
	result, replay := extractor.Extract(context.Background(), lines)

	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", result.ID)
	require.False(t, result.Synthetic)
	require.Len(t, replay, 1)
}

// TestExtract_ReplayIncludesEveryConsumedLine verifies extraction is
// lookahead-only: lines read before the init line, and the init line
// itself, all come back for downstream parsing.
func TestExtract_ReplayIncludesEveryConsumedLine(t *testing.T) {
	lines := feed(
		`{"type":"stream_event","event":{}}`,
		`not json at all`,
		`{"type":"system","subtype":"init","session_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV"}`,
	)

	extractor := NewExtractor(slog.Default(), time.Second)
	result, replay := extractor.Extract(context.Background(), lines)

	require.False(t, result.Synthetic)
	require.Len(t, replay, 3)
	require.Equal(t, "not json at all", string(replay[1]))
}

// TestExtract_WrongLengthIDSkipped verifies a malformed id is never
// accepted; a later valid id wins.
func TestExtract_WrongLengthIDSkipped(t *testing.T) {
	lines := feed(
		`{"type":"system","subtype":"init","session_id":"tooshort"}`,
		`{"type":"system","subtype":"init","session_id":"01ARZ3NDEKTSV4RRFFQ69G5FAV"}`,
	)

	extractor := NewExtractor(slog.Default(), time.Second)
	result, replay := extractor.Extract(context.Background(), lines)

	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", result.ID)
	require.False(t, result.Synthetic)
	require.Len(t, replay, 2)
}

func TestExtract_TimeoutYieldsSyntheticID(t *testing.T) {
	lines := make(chan []byte) // never receives

	extractor := NewExtractor(slog.Default(), 50*time.Millisecond)

	start := time.Now()
	result, replay := extractor.Extract(context.Background(), lines)

	require.True(t, result.Synthetic)
	require.True(t, ValidID(result.ID))
	require.Empty(t, replay)
	require.Less(t, time.Since(start), time.Second)
}

func TestExtract_ClosedChannelYieldsSyntheticID(t *testing.T) {
	lines := make(chan []byte)
	close(lines)

	extractor := NewExtractor(slog.Default(), time.Second)
	result, _ := extractor.Extract(context.Background(), lines)

	require.True(t, result.Synthetic)
	require.True(t, ValidID(result.ID))
}

func TestExtract_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := make(chan []byte)

	extractor := NewExtractor(slog.Default(), time.Minute)
	result, _ := extractor.Extract(ctx, lines)

	require.True(t, result.Synthetic)
}
