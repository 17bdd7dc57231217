// Package platform isolates per-OS behavior behind a single interface,
// selected once at startup. Termination signals, binary search conventions,
// and command-line limits all differ per OS; keeping them here avoids
// scattering runtime.GOOS conditionals through the supervisor logic.
package platform

import (
	"context"
	"os"
	"runtime"
)

// Platform captures the OS-specific pieces of process supervision.
type Platform interface {
	// Name returns the GOOS-style platform name.
	Name() string

	// GracefulSignal returns the signal used for the graceful termination
	// phase, or nil when the OS has no graceful phase (Windows).
	GracefulSignal() os.Signal

	// ExtraArgs returns platform-conditional CLI flags. These are always
	// appended last in the argument vector.
	ExtraArgs() []string

	// SearchPaths returns OS-conventional install locations for the CLI
	// binary, in preference order.
	SearchPaths(homeDir string) []string

	// FallbackPaths returns last-resort candidate paths discovered
	// dynamically (e.g. inside a compatibility subsystem). May run external
	// commands, hence the context.
	FallbackPaths(ctx context.Context) []string

	// MaxPromptArgBytes is the largest prompt that may be passed as a
	// command-line argument; longer prompts go through the stdin pipe.
	MaxPromptArgBytes() int
}

// Current returns the Platform implementation for the running OS.
func Current() Platform {
	switch runtime.GOOS {
	case "windows":
		return &windowsPlatform{}
	case "darwin":
		return &darwinPlatform{}
	default:
		return &posixPlatform{goos: runtime.GOOS}
	}
}
