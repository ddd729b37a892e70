package safety

import "testing"

func TestSSRFGuard_BlocksMetadataEndpoint(t *testing.T) {
	g := NewSSRFGuard(nil)
	if r := g.IsURLBlocked("http://169.254.169.254/latest"); r == "" {
		t.Fatal("expected metadata endpoint to be blocked")
	}
}

func TestSSRFGuard_AllowsPublicHost(t *testing.T) {
	g := NewSSRFGuard(nil)
	if r := g.IsURLBlocked("https://api.github.com"); r != "" {
		t.Fatalf("expected public host to be allowed, got reason: %q", r)
	}
}

func TestSSRFGuard_BlocksRFC1918AndLoopback(t *testing.T) {
	g := NewSSRFGuard(nil)
	cases := []string{
		"http://127.0.0.1:8080/",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://172.16.0.1/",
		"http://172.31.255.255/",
		"http://localhost/",
	}
	for _, c := range cases {
		if r := g.IsURLBlocked(c); r == "" {
			t.Fatalf("expected %q to be blocked", c)
		}
	}
}

func TestSSRFGuard_BlocksUnspecifiedAddress(t *testing.T) {
	g := NewSSRFGuard(nil)
	cases := []string{"http://0.0.0.0/", "http://[::]/"}
	for _, c := range cases {
		if r := g.IsURLBlocked(c); r == "" {
			t.Fatalf("expected %q to be blocked", c)
		}
	}
}

func TestSSRFGuard_AllowsAdjacent172Ranges(t *testing.T) {
	g := NewSSRFGuard(nil)
	cases := []string{"http://172.15.0.1/", "http://172.32.0.1/"}
	for _, c := range cases {
		if r := g.IsURLBlocked(c); r != "" {
			t.Fatalf("expected %q to be allowed, got reason: %q", c, r)
		}
	}
}

func TestSSRFGuard_BlocksNonHTTPScheme(t *testing.T) {
	g := NewSSRFGuard(nil)
	if r := g.IsURLBlocked("file:///etc/passwd"); r == "" {
		t.Fatal("expected file scheme to be blocked")
	}
}

func TestSSRFGuard_ConfiguredExtraDeniedHost(t *testing.T) {
	g := NewSSRFGuard([]string{"internal.corp.example"})
	if r := g.IsURLBlocked("https://internal.corp.example/admin"); r == "" {
		t.Fatal("expected configured denied host to be blocked")
	}
}
