package safety

import (
	"testing"

	"go.uber.org/zap"
)

func newTestEnvelope() *Envelope {
	return NewEnvelope(Config{
		AllowedCommands: []string{"ls", "echo"},
	}, zap.NewNop())
}

func TestEnvelope_AllowsCleanCall(t *testing.T) {
	e := newTestEnvelope()
	allowed, reason := e.CheckToolCall("bash", "ls -la", "", "", `{"command":"ls -la"}`)
	if !allowed {
		t.Fatalf("expected clean call to pass, got refusal: %s", reason)
	}
}

func TestEnvelope_BlocksDisallowedCommand(t *testing.T) {
	e := newTestEnvelope()
	allowed, reason := e.CheckToolCall("bash", "rm -rf /", "", "", `{"command":"rm -rf /"}`)
	if allowed {
		t.Fatal("expected disallowed command to be refused")
	}
	if reason != "command not in allowlist" {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestEnvelope_BlockedCallsStillFeedLoopDetector(t *testing.T) {
	// A command the allowlist keeps refusing must still land in the loop
	// deque on every attempt, so the 4th identical call escalates from the
	// allowlist refusal to a loop signal.
	e := newTestEnvelope()
	args := `{"command":"rm -rf /"}`

	for i := 0; i < 3; i++ {
		allowed, reason := e.CheckToolCall("bash", "rm -rf /", "", "", args)
		if allowed {
			t.Fatalf("call %d: expected refusal", i+1)
		}
		if reason != "command not in allowlist" {
			t.Fatalf("call %d: expected allowlist refusal, got: %s", i+1, reason)
		}
	}

	allowed, reason := e.CheckToolCall("bash", "rm -rf /", "", "", args)
	if allowed {
		t.Fatal("expected 4th identical call to be refused")
	}
	if reason == "command not in allowlist" {
		t.Fatalf("expected loop signal on the 4th call, still got: %s", reason)
	}
	if e.Loops.LoopsDetected() != 1 {
		t.Fatalf("expected 1 loop detected, got %d", e.Loops.LoopsDetected())
	}
}

func TestEnvelope_SSRFGuardStillApplies(t *testing.T) {
	e := newTestEnvelope()
	allowed, reason := e.CheckToolCall("web_fetch", "", "", "http://169.254.169.254/latest", `{"url":"http://169.254.169.254/latest"}`)
	if allowed {
		t.Fatal("expected metadata URL to be refused")
	}
	if reason == "" {
		t.Fatal("expected a non-empty SSRF reason")
	}
}
