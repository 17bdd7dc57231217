package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wagiedev/claude-supervisor-go/internal/errors"
)

// fakePlatform returns fixed search locations so tests never touch the
// real filesystem layout.
type fakePlatform struct {
	name      string
	extraArgs []string
	search    []string
	fallback  []string
	maxPrompt int
}

func (p *fakePlatform) Name() string                             { return p.name }
func (p *fakePlatform) GracefulSignal() os.Signal                { return os.Interrupt }
func (p *fakePlatform) ExtraArgs() []string                      { return p.extraArgs }
func (p *fakePlatform) SearchPaths(homeDir string) []string      { return p.search }
func (p *fakePlatform) FallbackPaths(ctx context.Context) []string { return p.fallback }
func (p *fakePlatform) MaxPromptArgBytes() int                   { return p.maxPrompt }

// writeFakeCLI writes an executable shell script that reports the given
// version on any invocation.
func writeFakeCLI(t *testing.T, dir, version string) string {
	t.Helper()

	path := filepath.Join(dir, "claude")
	err := os.WriteFile(path, []byte("#!/bin/sh\necho "+version+"\n"), 0o755)
	require.NoError(t, err)

	return path
}

func TestDiscoverer_NotFound(t *testing.T) {
	discoverer := NewDiscoverer(&Config{
		CliPath: "/nonexistent/path/to/claude",
		Logger:  slog.Default(),
	})

	_, err := discoverer.Discover(context.Background())

	require.Error(t, err)
	require.IsType(t, &errors.CLINotFoundError{}, err)
}

func TestDiscoverer_ExplicitPath(t *testing.T) {
	fakeCLI := writeFakeCLI(t, t.TempDir(), "2.1.0")

	discoverer := NewDiscoverer(&Config{
		CliPath: fakeCLI,
		Logger:  slog.Default(),
	})

	path, err := discoverer.Discover(context.Background())

	require.NoError(t, err)
	require.Equal(t, fakeCLI, path)
}

func TestDiscoverer_EnvOverride(t *testing.T) {
	fakeCLI := writeFakeCLI(t, t.TempDir(), "2.1.0")
	t.Setenv(PathEnvVar, fakeCLI)

	discoverer := NewDiscoverer(&Config{
		Platform: &fakePlatform{},
		Logger:   slog.Default(),
	})

	path, err := discoverer.Discover(context.Background())

	require.NoError(t, err)
	require.Equal(t, fakeCLI, path)
}

func TestDiscoverer_SearchPaths(t *testing.T) {
	t.Setenv("PATH", t.TempDir()) // empty dir, so PATH lookup misses

	fakeCLI := writeFakeCLI(t, t.TempDir(), "2.1.0")

	discoverer := NewDiscoverer(&Config{
		Platform: &fakePlatform{search: []string{"/nonexistent/claude", fakeCLI}},
		Logger:   slog.Default(),
	})

	path, err := discoverer.Discover(context.Background())

	require.NoError(t, err)
	require.Equal(t, fakeCLI, path)
}

func TestDiscoverer_NotFoundReportsSearchedPaths(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	discoverer := NewDiscoverer(&Config{
		Platform: &fakePlatform{
			search:   []string{"/nonexistent/a/claude"},
			fallback: []string{"/nonexistent/b/claude"},
		},
		Logger: slog.Default(),
	})

	_, err := discoverer.Discover(context.Background())
	require.Error(t, err)

	var notFound *errors.CLINotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Contains(t, notFound.SearchedPaths, "$PATH")
	require.Contains(t, notFound.SearchedPaths, "/nonexistent/a/claude")
	require.Contains(t, notFound.SearchedPaths, "/nonexistent/b/claude")
}

// TestDiscoverer_PrefersHighestVersion verifies that with several
// candidates, the one reporting the highest semantic version wins even
// when it appears later in search order.
func TestDiscoverer_PrefersHighestVersion(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	older := writeFakeCLI(t, t.TempDir(), "1.0.44")
	newer := writeFakeCLI(t, t.TempDir(), "2.0.14")

	discoverer := NewDiscoverer(&Config{
		Platform: &fakePlatform{search: []string{older, newer}},
		Logger:   slog.Default(),
	})

	path, err := discoverer.Discover(context.Background())

	require.NoError(t, err)
	require.Equal(t, newer, path)
}

// TestDiscoverer_CachesValidatedPath verifies a second discovery reuses
// the first result without re-searching.
func TestDiscoverer_CachesValidatedPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	fakeCLI := writeFakeCLI(t, t.TempDir(), "2.1.0")
	plat := &fakePlatform{search: []string{fakeCLI}}

	discoverer := NewDiscoverer(&Config{Platform: plat, Logger: slog.Default()})

	first, err := discoverer.Discover(context.Background())
	require.NoError(t, err)

	// A new candidate appearing earlier in search order must not displace
	// the cached path while it remains valid.
	plat.search = []string{writeFakeCLI(t, t.TempDir(), "9.9.9"), fakeCLI}

	second, err := discoverer.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDiscoverer_CacheRevalidated(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	stale := writeFakeCLI(t, t.TempDir(), "2.1.0")
	replacement := writeFakeCLI(t, t.TempDir(), "2.2.0")
	plat := &fakePlatform{search: []string{stale}}

	discoverer := NewDiscoverer(&Config{Platform: plat, Logger: slog.Default()})

	_, err := discoverer.Discover(context.Background())
	require.NoError(t, err)

	// The cached binary disappears; discovery must fall through to a
	// fresh search instead of returning the dead path.
	require.NoError(t, os.Remove(stale))
	plat.search = []string{replacement}

	path, err := discoverer.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, replacement, path)
}

func TestBuildArgs_Basic(t *testing.T) {
	args := BuildArgs(Args{Prompt: "hello"}, &fakePlatform{})

	require.Equal(t, []string{
		"-p", "hello",
		"--output-format", "stream-json",
		"--verbose",
		"--print",
	}, args)
}

func TestBuildArgs_FullOrder(t *testing.T) {
	args := BuildArgs(Args{
		Prompt:          "hello",
		Model:           "claude-sonnet-4-5",
		ResumeSessionID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
	}, &fakePlatform{extraArgs: []string{"--dangerously-skip-permissions"}})

	require.Equal(t, []string{
		"--resume", "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"-p", "hello",
		"--model", "claude-sonnet-4-5",
		"--output-format", "stream-json",
		"--verbose",
		"--print",
		"--dangerously-skip-permissions",
	}, args)
}

// TestBuildArgs_ResumeBeforePrompt pins the ordering invariant: the
// resume flag must come strictly before the prompt flag in every
// combination, or the binary starts a fresh conversation instead.
func TestBuildArgs_ResumeBeforePrompt(t *testing.T) {
	combos := []Args{
		{Prompt: "p", ResumeSessionID: "X"},
		{Prompt: "p", ResumeSessionID: "X", Model: "m"},
	}

	for _, a := range combos {
		args := BuildArgs(a, &fakePlatform{})

		resumeIdx := slices.Index(args, "--resume")
		promptIdx := slices.Index(args, "-p")

		require.NotEqual(t, -1, resumeIdx)
		require.NotEqual(t, -1, promptIdx)
		require.Less(t, resumeIdx, promptIdx)
	}
}

func TestBuildArgs_StdinPromptOmitsFlag(t *testing.T) {
	args := BuildArgs(Args{Prompt: "huge payload", StdinPrompt: true}, &fakePlatform{})

	require.NotContains(t, args, "-p")
	require.NotContains(t, args, "huge payload")
	require.Contains(t, args, "--print")
}

func TestBuildArgs_AlwaysNonInteractive(t *testing.T) {
	// --print on every invocation; omitting it hangs the child forever.
	for _, a := range []Args{{}, {Prompt: "p"}, {ResumeSessionID: "X"}, {StdinPrompt: true}} {
		require.Contains(t, BuildArgs(a, &fakePlatform{}), "--print")
	}
}

func TestBuildEnvironment(t *testing.T) {
	env := BuildEnvironment(map[string]string{"FOO": "bar"})

	require.Contains(t, env, "FOO=bar")
	require.Contains(t, env, "CLAUDE_CODE_ENTRYPOINT=supervisor-go")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.44", "1.0.9", 1},
		{"1.0", "1.0.1", -1},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, compareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
