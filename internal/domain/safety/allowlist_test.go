package safety

import "testing"

func TestCommandAllowlist_AllowsBasenameMatch(t *testing.T) {
	a := NewCommandAllowlist([]string{"ls", "git"})

	if !a.IsCommandAllowed("ls -la") {
		t.Fatal("expected ls -la to be allowed")
	}
	if !a.IsCommandAllowed("/usr/bin/git status") {
		t.Fatal("expected basename match on full path to be allowed")
	}
}

func TestCommandAllowlist_RejectsUnlisted(t *testing.T) {
	a := NewCommandAllowlist([]string{"ls"})
	if a.IsCommandAllowed("rm -rf /") {
		t.Fatal("expected rm to be denied")
	}
}

func TestCommandAllowlist_RejectsMetacharacters(t *testing.T) {
	a := NewCommandAllowlist([]string{"ls"})
	cases := []string{
		"ls; rm -rf /",
		"ls | tee /etc/passwd",
		"ls && rm -rf /",
		"ls `whoami`",
		"ls > /etc/passwd",
		"ls $(whoami)",
		"ls\nrm -rf /",
	}
	for _, c := range cases {
		if a.IsCommandAllowed(c) {
			t.Fatalf("expected command to be denied: %q", c)
		}
	}
}

func TestCommandAllowlist_RejectsEmpty(t *testing.T) {
	a := NewCommandAllowlist([]string{"ls"})
	if a.IsCommandAllowed("") {
		t.Fatal("expected empty command to be denied")
	}
	if a.IsCommandAllowed("   ") {
		t.Fatal("expected whitespace-only command to be denied")
	}
}

func TestCommandAllowlist_AllowDeny(t *testing.T) {
	a := NewCommandAllowlist(nil)
	if a.IsCommandAllowed("curl https://example.com") {
		t.Fatal("expected curl to start denied")
	}
	a.Allow("curl")
	if !a.IsCommandAllowed("curl https://example.com") {
		t.Fatal("expected curl to be allowed after Allow")
	}
	a.Deny("curl")
	if a.IsCommandAllowed("curl https://example.com") {
		t.Fatal("expected curl to be denied after Deny")
	}
}
