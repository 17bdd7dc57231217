package cli

import (
	"fmt"
	"os"

	"github.com/wagiedev/claude-supervisor-go/internal/platform"
)

// Args holds the inputs to argument-vector construction.
type Args struct {
	// Prompt is the user prompt. Ignored when StdinPrompt is set.
	Prompt string

	// StdinPrompt omits the prompt argument; the caller delivers the
	// prompt over a stdin pipe instead. Used for payloads that exceed the
	// platform's command-line budget.
	StdinPrompt bool

	// Model selects the model, if non-empty.
	Model string

	// ResumeSessionID resumes an existing conversation, if non-empty.
	ResumeSessionID string
}

// BuildArgs constructs the CLI argument vector.
//
// The order is non-negotiable: the binary parses flags contextually, so a
// resume flag appearing after the prompt is silently ignored and a new
// conversation starts instead of resuming. --print is mandatory on every
// invocation; without it the process blocks waiting for interactive input.
func BuildArgs(a Args, plat platform.Platform) []string {
	args := make([]string, 0, 12)

	// 1. Resume must come first.
	if a.ResumeSessionID != "" {
		args = append(args, "--resume", a.ResumeSessionID)
	}

	// 2. Prompt, unless delivered over stdin.
	if !a.StdinPrompt && a.Prompt != "" {
		args = append(args, "-p", a.Prompt)
	}

	// 3. Model.
	if a.Model != "" {
		args = append(args, "--model", a.Model)
	}

	// 4-6. Fixed streaming/non-interactive mode.
	args = append(args,
		"--output-format", "stream-json",
		"--verbose",
		"--print",
	)

	// 7. Platform-conditional flags last.
	args = append(args, plat.ExtraArgs()...)

	return args
}

// BuildEnvironment constructs the environment for the CLI process: the
// current environment plus caller overrides.
func BuildEnvironment(extra map[string]string) []string {
	env := os.Environ()

	env = append(env, "CLAUDE_CODE_ENTRYPOINT=supervisor-go")

	for key, value := range extra {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
