package safety

import (
	"os"
	"path/filepath"
	"strings"
)

// PathGuard rejects filesystem paths that fall outside a configured set of
// permitted roots. Grounded on allowlist.rs's is_path_allowed: tilde
// expansion, a forbidden-prefix denylist, and an optional workspace
// containment check.
type PathGuard struct {
	forbiddenPrefixes []string
	workspaceOnly     bool
	workspaceRoot     string
}

// defaultForbiddenPrefixes blocks system configuration and credential
// directories regardless of workspace_only mode.
var defaultForbiddenPrefixes = []string{
	"/etc",
	"/sys",
	"/proc",
	"/root/.ssh",
	"/var/run/secrets",
}

// NewPathGuard builds a guard. workspaceRoot is used only when
// workspaceOnly is true; an empty workspaceRoot falls back to the process's
// current working directory at check time.
func NewPathGuard(workspaceOnly bool, workspaceRoot string) *PathGuard {
	return &PathGuard{
		forbiddenPrefixes: append([]string(nil), defaultForbiddenPrefixes...),
		workspaceOnly:     workspaceOnly,
		workspaceRoot:     workspaceRoot,
	}
}

// AddForbiddenPrefix extends the denylist with an additional path prefix.
func (g *PathGuard) AddForbiddenPrefix(prefix string) {
	g.forbiddenPrefixes = append(g.forbiddenPrefixes, prefix)
}

// IsPathAllowed expands a leading "~" to the user's home directory, denies
// any forbidden prefix, and — when workspace_only is set — denies any path
// that resolves outside the configured workspace root.
func (g *PathGuard) IsPathAllowed(path string) bool {
	expanded := g.expandTilde(path)
	resolved := expanded
	if abs, err := filepath.Abs(expanded); err == nil {
		resolved = abs
	}
	resolved = filepath.Clean(resolved)

	for _, prefix := range g.forbiddenPrefixes {
		if resolved == prefix || strings.HasPrefix(resolved, prefix+string(filepath.Separator)) {
			return false
		}
	}

	if !g.workspaceOnly {
		return true
	}

	root := g.workspaceRoot
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	root = filepath.Clean(root)

	return resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator))
}

func (g *PathGuard) expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
