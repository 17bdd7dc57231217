package registry

import (
	"context"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wagiedev/claude-supervisor-go/internal/errors"
)

// startSleeper spawns a short shell sleep owned by the test registry.
func startSleeper(t *testing.T, seconds string) *exec.Cmd {
	t.Helper()

	cmd := exec.Command("sleep", seconds)
	require.NoError(t, cmd.Start())

	return cmd
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r := New(Config{
		Logger:        slog.Default(),
		GraceTimeout:  500 * time.Millisecond,
		SweepInterval: 50 * time.Millisecond,
	})

	t.Cleanup(func() { _ = r.Close(context.Background()) })

	return r
}

func TestRegister_AssignsIncreasingRunIDs(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Register(startSleeper(t, "10"), "")
	require.NoError(t, err)
	a.MarkReadersDone()

	b, err := r.Register(startSleeper(t, "10"), "")
	require.NoError(t, err)
	b.MarkReadersDone()

	require.Positive(t, a.RunID())
	require.Greater(t, b.RunID(), a.RunID())
}

func TestTerminate_RemovesRun(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.Register(startSleeper(t, "60"), "")
	require.NoError(t, err)
	h.MarkReadersDone()

	require.NoError(t, r.Terminate(context.Background(), h.RunID()))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run was not reaped after terminate")
	}

	require.True(t, h.Intentional())
	require.Empty(t, r.ListActive())
}

// TestTerminate_UnknownRunIsNoOp pins idempotency: terminating a run that
// already exited (or never existed) returns nil.
func TestTerminate_UnknownRunIsNoOp(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Terminate(context.Background(), 12345))
}

func TestTerminate_DoubleTerminate(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.Register(startSleeper(t, "60"), "")
	require.NoError(t, err)
	h.MarkReadersDone()

	require.NoError(t, r.Terminate(context.Background(), h.RunID()))
	<-h.Done()

	// Second call sees an unknown run and is a no-op.
	require.NoError(t, r.Terminate(context.Background(), h.RunID()))
}

func TestReap_NaturalExitRemovesRun(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.Register(startSleeper(t, "0"), "")
	require.NoError(t, err)
	h.MarkReadersDone()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run was not reaped after natural exit")
	}

	require.NoError(t, h.ExitErr())
	require.False(t, h.Intentional())
	require.Empty(t, r.ListActive())
}

func TestAttachSessionID(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.Register(startSleeper(t, "60"), "")
	require.NoError(t, err)
	h.MarkReadersDone()

	id, synthetic := h.SessionID()
	require.Empty(t, id)
	require.False(t, synthetic)

	require.NoError(t, r.AttachSessionID(h.RunID(), "01ARZ3NDEKTSV4RRFFQ69G5FAV", true))

	id, synthetic = h.SessionID()
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", id)
	require.True(t, synthetic)

	infos := r.ListActive()
	require.Len(t, infos, 1)
	require.Equal(t, "01ARZ3NDEKTSV4RRFFQ69G5FAV", infos[0].SessionID)
}

func TestAttachSessionID_UnknownRun(t *testing.T) {
	r := newTestRegistry(t)

	err := r.AttachSessionID(999, "01ARZ3NDEKTSV4RRFFQ69G5FAV", false)
	require.ErrorIs(t, err, errors.ErrUnknownRun)
}

// TestSessionConflict_EvictsOlderRun verifies two runs can never share a
// session: the older run is dropped from the index and killed.
func TestSessionConflict_EvictsOlderRun(t *testing.T) {
	r := newTestRegistry(t)

	const sessionID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

	older, err := r.Register(startSleeper(t, "60"), sessionID)
	require.NoError(t, err)
	older.MarkReadersDone()

	newer, err := r.Register(startSleeper(t, "60"), sessionID)
	require.NoError(t, err)
	newer.MarkReadersDone()

	// The kill runs inline during Register, before the new index entry is
	// published, so the eviction is already visible here.
	require.True(t, older.Intentional())

	select {
	case <-older.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("evicted run was not killed")
	}

	infos := r.ListActive()
	require.Len(t, infos, 1)
	require.Equal(t, newer.RunID(), infos[0].RunID)
	require.Equal(t, sessionID, infos[0].SessionID)
}

// TestSessionConflict_AttachEvictsOlderRun covers the same exclusivity
// when the conflicting id arrives via AttachSessionID instead of Register.
func TestSessionConflict_AttachEvictsOlderRun(t *testing.T) {
	r := newTestRegistry(t)

	const sessionID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"

	older, err := r.Register(startSleeper(t, "60"), sessionID)
	require.NoError(t, err)
	older.MarkReadersDone()

	newer, err := r.Register(startSleeper(t, "60"), "")
	require.NoError(t, err)
	newer.MarkReadersDone()

	require.NoError(t, r.AttachSessionID(newer.RunID(), sessionID, false))
	require.True(t, older.Intentional())

	select {
	case <-older.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("evicted run was not killed")
	}

	id, _ := newer.SessionID()
	require.Equal(t, sessionID, id)
}

func TestListActive_OrderedByRunID(t *testing.T) {
	r := newTestRegistry(t)

	for n := 0; n < 3; n++ {
		h, err := r.Register(startSleeper(t, "60"), "")
		require.NoError(t, err)
		h.MarkReadersDone()
	}

	infos := r.ListActive()
	require.Len(t, infos, 3)
	require.Less(t, infos[0].RunID, infos[1].RunID)
	require.Less(t, infos[1].RunID, infos[2].RunID)
}

func TestClose_TerminatesEverything(t *testing.T) {
	r := New(Config{
		Logger:       slog.Default(),
		GraceTimeout: 500 * time.Millisecond,
	})

	var handles []*Handle

	for n := 0; n < 3; n++ {
		h, err := r.Register(startSleeper(t, "60"), "")
		require.NoError(t, err)
		h.MarkReadersDone()
		handles = append(handles, h)
	}

	require.NoError(t, r.Close(context.Background()))

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("run survived registry close")
		}
	}

	require.Empty(t, r.ListActive())
}

func TestClose_RejectsNewRegistrations(t *testing.T) {
	r := New(Config{Logger: slog.Default()})
	require.NoError(t, r.Close(context.Background()))

	cmd := exec.Command("sleep", "0")
	require.NoError(t, cmd.Start())

	_, err := r.Register(cmd, "")
	require.ErrorIs(t, err, errors.ErrRegistryClosed)

	// Not registry-owned, reap it here.
	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()
}

// TestReap_WaitsForReaders verifies the process is not waited on until the
// readers are done, so pipe reads are never cut off by an early Wait.
func TestReap_WaitsForReaders(t *testing.T) {
	r := newTestRegistry(t)

	cmd := exec.Command("sh", "-c", "echo hello; exit 0")
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	h, err := r.Register(cmd, "")
	require.NoError(t, err)

	// The run must stay registered while readers are outstanding.
	select {
	case <-h.Done():
		t.Fatal("run reaped before readers were done")
	case <-time.After(100 * time.Millisecond):
	}

	buf := make([]byte, 64)
	n, _ := stdout.Read(buf)
	require.Equal(t, "hello\n", string(buf[:n]))

	h.MarkReadersDone()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run was not reaped after readers finished")
	}

	require.NoError(t, h.ExitErr())
}

func TestExitErr_NonZeroExit(t *testing.T) {
	r := newTestRegistry(t)

	cmd := exec.Command("sh", "-c", "exit 3")
	require.NoError(t, cmd.Start())

	h, err := r.Register(cmd, "")
	require.NoError(t, err)
	h.MarkReadersDone()

	<-h.Done()

	var exitErr *exec.ExitError
	require.ErrorAs(t, h.ExitErr(), &exitErr)
	require.Equal(t, 3, exitErr.ExitCode())
}

func TestHandleInfoSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.Register(startSleeper(t, "60"), "")
	require.NoError(t, err)
	h.MarkReadersDone()

	infos := r.ListActive()
	require.Len(t, infos, 1)
	require.Equal(t, h.RunID(), infos[0].RunID)
	require.NotZero(t, infos[0].PID)
	require.False(t, infos[0].StartedAt.IsZero())
}
