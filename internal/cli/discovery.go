package cli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/claude-supervisor-go/internal/errors"
	"github.com/wagiedev/claude-supervisor-go/internal/platform"
)

const (
	// BinaryName is the name of the Claude CLI binary on PATH.
	BinaryName = "claude"

	// PathEnvVar overrides discovery entirely when set.
	PathEnvVar = "CLAUDE_CLI_PATH"

	// VersionProbeTimeout bounds the `claude -v` candidate probe.
	VersionProbeTimeout = 2 * time.Second
)

// Config holds configuration for CLI discovery.
type Config struct {
	// CliPath is an explicit CLI path that skips all searching.
	CliPath string

	// Platform supplies OS-conventional search locations. If nil, the
	// current platform is used.
	Platform platform.Platform

	// Logger is an optional logger for discovery operations.
	Logger *slog.Logger
}

// Discoverer locates the Claude CLI binary.
type Discoverer interface {
	// Discover returns the path to the CLI binary, or CLINotFoundError
	// carrying every path that was tried.
	Discover(ctx context.Context) (string, error)
}

type discoverer struct {
	cfg  *Config
	plat platform.Platform
	log  *slog.Logger

	mu     sync.Mutex
	cached string
}

var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new CLI discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	plat := cfg.Platform
	if plat == nil {
		plat = platform.Current()
	}

	return &discoverer{
		cfg:  cfg,
		plat: plat,
		log:  log,
	}
}

// Discover locates the Claude CLI binary.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	// Explicit path is used and only it.
	if d.cfg.CliPath != "" {
		d.log.Debug("Using explicit CLI path", "cli_path", d.cfg.CliPath)

		if isExecutableFile(d.cfg.CliPath) {
			return d.cfg.CliPath, nil
		}

		return "", &errors.CLINotFoundError{SearchedPaths: []string{d.cfg.CliPath}}
	}

	// Environment override.
	if envPath := os.Getenv(PathEnvVar); envPath != "" {
		d.log.Debug("Using CLI path from environment", "cli_path", envPath)

		if isExecutableFile(envPath) {
			return envPath, nil
		}

		return "", &errors.CLINotFoundError{SearchedPaths: []string{envPath}}
	}

	// Cached path from a previous discovery, revalidated before reuse.
	d.mu.Lock()
	cached := d.cached
	d.mu.Unlock()

	if cached != "" && isExecutableFile(cached) {
		d.log.Debug("Reusing cached CLI path", "cli_path", cached)

		return cached, nil
	}

	path, err := d.search(ctx)
	if err != nil {
		d.log.Error("Failed to find Claude CLI", "error", err)

		return "", err
	}

	d.mu.Lock()
	d.cached = path
	d.mu.Unlock()

	d.log.Debug("Found Claude CLI binary", "cli_path", path)

	return path, nil
}

// search walks the search order and picks the best existing candidate.
func (d *discoverer) search(ctx context.Context) (string, error) {
	searched := make([]string, 0, 16)
	candidates := make([]string, 0, 4)

	// PATH lookup first.
	searched = append(searched, "$PATH")

	if path, err := exec.LookPath(BinaryName); err == nil {
		d.log.Debug("Found candidate in PATH", "path", path)

		candidates = append(candidates, path)
	}

	// OS-conventional install directories.
	homeDir, _ := os.UserHomeDir()

	for _, path := range d.plat.SearchPaths(homeDir) {
		searched = append(searched, path)

		if isExecutableFile(path) {
			d.log.Debug("Found candidate at conventional path", "path", path)

			candidates = append(candidates, path)
		}
	}

	// Platform fallback locations only when nothing native was found.
	if len(candidates) == 0 {
		for _, path := range d.plat.FallbackPaths(ctx) {
			searched = append(searched, path)

			if isExecutableFile(path) {
				d.log.Debug("Found candidate at fallback path", "path", path)

				candidates = append(candidates, path)
			}
		}
	}

	if len(candidates) == 0 {
		d.log.Warn("Claude CLI not found in any searched paths", "searched_paths", searched)

		return "", &errors.CLINotFoundError{SearchedPaths: searched}
	}

	return d.pickBest(ctx, candidates), nil
}

// pickBest prefers the candidate reporting the highest semantic version.
// Candidates that fail the probe keep their search-order position, so with
// no version information at all the earliest-found path wins.
func (d *discoverer) pickBest(ctx context.Context, candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}

	best := candidates[0]
	bestVersion := ""

	for _, path := range candidates {
		version, err := d.probeVersion(ctx, path)
		if err != nil {
			d.log.Debug("Version probe failed", "path", path, "error", err)

			continue
		}

		d.log.Debug("Version probe", "path", path, "version", version)

		if bestVersion == "" || compareVersions(version, bestVersion) > 0 {
			best = path
			bestVersion = version
		}
	}

	return best
}

// probeVersion runs `claude -v` and extracts an X.Y.Z version string.
func (d *discoverer) probeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, VersionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-v").Output()
	if err != nil {
		return "", err
	}

	re := regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

	match := re.FindStringSubmatch(strings.TrimSpace(string(output)))
	if match == nil {
		return "", errors.ErrVersionUnparseable
	}

	return match[1], nil
}

// isExecutableFile reports whether path exists and is a regular file.
// Execute bits are not checked: Windows has none, and npm shims on POSIX
// systems are reliably marked executable anyway.
func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// compareVersions compares two semantic versions.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")

	for i := 0; i < 3; i++ {
		aNum := 0
		bNum := 0

		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}

		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}

		if aNum < bNum {
			return -1
		}

		if aNum > bNum {
			return 1
		}
	}

	return 0
}
