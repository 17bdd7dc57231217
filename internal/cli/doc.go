// Package cli locates the Claude CLI binary and builds the argument and
// environment vectors used to spawn it.
//
// Discovery searches, in order: an explicit configured path, the
// CLAUDE_CLI_PATH environment variable, a previously validated cached path,
// the system PATH, OS-conventional install directories, and finally
// platform fallback locations. When several candidates exist the one
// reporting the highest semantic version wins.
//
// Argument construction is strictly ordered: the wrapped binary parses its
// flags contextually, and a resume flag placed after the prompt is silently
// ignored.
package cli
