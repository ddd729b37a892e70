package safety

import (
	"path/filepath"
	"strings"
)

// forbiddenCommandChars blocks piping, chaining, substitution and
// redirection — a single reject scan before any allowlist lookup runs.
var forbiddenCommandChars = []rune{';', '|', '&', '`', '(', ')', '{', '}', '>', '<', '$', '\n'}

// CommandAllowlist enforces a fixed set of permitted binaries and rejects
// compound shell commands outright. Grounded on the sandbox's
// ProcessSandbox.isAllowed binary check, generalized into a standalone
// guard usable ahead of any execution path (sandbox or direct).
type CommandAllowlist struct {
	allowed map[string]bool
}

// NewCommandAllowlist builds an allowlist from a set of permitted command
// names (matched against either the raw first token or its basename).
func NewCommandAllowlist(commands []string) *CommandAllowlist {
	allowed := make(map[string]bool, len(commands))
	for _, c := range commands {
		allowed[c] = true
	}
	return &CommandAllowlist{allowed: allowed}
}

// IsCommandAllowed rejects on any forbidden metacharacter, then allows iff
// the first token or its basename is in the allowlist. Empty commands are
// always denied.
func (a *CommandAllowlist) IsCommandAllowed(command string) bool {
	if strings.TrimSpace(command) == "" {
		return false
	}
	for _, c := range forbiddenCommandChars {
		if strings.ContainsRune(command, c) {
			return false
		}
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	first := fields[0]
	base := filepath.Base(first)

	return a.allowed[first] || a.allowed[base]
}

// Allow adds a command to the allowlist at runtime.
func (a *CommandAllowlist) Allow(command string) {
	a.allowed[command] = true
}

// Deny removes a command from the allowlist at runtime.
func (a *CommandAllowlist) Deny(command string) {
	delete(a.allowed, command)
}

// Count returns the number of allowed commands.
func (a *CommandAllowlist) Count() int {
	return len(a.allowed)
}
