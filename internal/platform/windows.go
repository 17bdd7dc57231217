package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// wslProbeTimeout bounds the WSL username lookup so a hung WSL subsystem
// cannot stall binary discovery.
const wslProbeTimeout = 3 * time.Second

// windowsPlatform has no graceful termination phase: there is no POSIX
// interrupt to deliver, so termination is a single forceful kill.
type windowsPlatform struct{}

func (p *windowsPlatform) Name() string { return "windows" }

func (p *windowsPlatform) GracefulSignal() os.Signal { return nil }

func (p *windowsPlatform) ExtraArgs() []string { return nil }

func (p *windowsPlatform) SearchPaths(homeDir string) []string {
	paths := []string{}

	if programFiles := os.Getenv("ProgramFiles"); programFiles != "" {
		paths = append(paths, filepath.Join(programFiles, "Claude", "claude.exe"))
	}

	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		paths = append(paths,
			filepath.Join(localAppData, "Programs", "claude", "claude.exe"),
			filepath.Join(localAppData, "Microsoft", "WinGet", "Links", "claude.exe"),
		)
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, "AppData", "Roaming", "npm", "claude.cmd"),
			filepath.Join(homeDir, ".bun", "bin", "claude.exe"),
		)
	}

	return paths
}

// FallbackPaths searches the WSL filesystem view. The WSL username is
// resolved dynamically by asking the subsystem itself; it is never assumed
// to match the Windows username.
func (p *windowsPlatform) FallbackPaths(ctx context.Context) []string {
	user, err := wslUsername(ctx)
	if err != nil || user == "" {
		return nil
	}

	const distro = "Ubuntu"

	return []string{
		fmt.Sprintf(`\\wsl$\%s\usr\local\bin\claude`, distro),
		fmt.Sprintf(`\\wsl$\%s\home\%s\.local\bin\claude`, distro, user),
		fmt.Sprintf(`\\wsl$\%s\home\%s\.npm-global\bin\claude`, distro, user),
	}
}

// MaxPromptArgBytes stays well under the 32K Windows command-line limit.
func (p *windowsPlatform) MaxPromptArgBytes() int { return 24 * 1024 }

// wslUsername asks WSL for the current user inside the subsystem.
func wslUsername(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wslProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "wsl", "-e", "bash", "-c", "whoami").Output()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}
