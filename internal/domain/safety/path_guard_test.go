package safety

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathGuard_DeniesForbiddenPrefix(t *testing.T) {
	g := NewPathGuard(false, "")
	if g.IsPathAllowed("/etc/passwd") {
		t.Fatal("expected /etc/passwd to be denied")
	}
	if g.IsPathAllowed("/root/.ssh/id_rsa") {
		t.Fatal("expected ssh key path to be denied")
	}
}

func TestPathGuard_AllowsOrdinaryPath(t *testing.T) {
	g := NewPathGuard(false, "")
	if !g.IsPathAllowed("/tmp/scratch/file.txt") {
		t.Fatal("expected ordinary path to be allowed")
	}
}

func TestPathGuard_ExpandsTilde(t *testing.T) {
	g := NewPathGuard(false, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	expanded := g.expandTilde("~/notes.txt")
	want := filepath.Join(home, "notes.txt")
	if expanded != want {
		t.Fatalf("expected %q, got %q", want, expanded)
	}
}

func TestPathGuard_WorkspaceOnlyContainment(t *testing.T) {
	g := NewPathGuard(true, "/workspace/project")
	if !g.IsPathAllowed("/workspace/project/src/main.go") {
		t.Fatal("expected path inside workspace to be allowed")
	}
	if g.IsPathAllowed("/workspace/other/file.txt") {
		t.Fatal("expected path outside workspace to be denied")
	}
}
