package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"go.uber.org/zap"
)

// fakeRunner stubs TurnRunner for tests that need a sync delegation to
// actually produce a result instead of only exercising the no-runner
// error path.
type fakeRunner struct {
	response string
	err      error
	calls    []string // "agentID: prompt"
}

func (r *fakeRunner) RunTurn(ctx context.Context, agentID, prompt string) (string, error) {
	r.calls = append(r.calls, fmt.Sprintf("%s: %s", agentID, prompt))
	if r.err != nil {
		return "", r.err
	}
	return r.response, nil
}

func newTestOrchestrator() (*Orchestrator, *fakeStore) {
	return newTestOrchestratorWithRunner(&fakeRunner{response: "ok"})
}

func newTestOrchestratorWithRunner(runner TurnRunner) (*Orchestrator, *fakeStore) {
	store := newFakeStore()
	o := NewOrchestrator(store, runner, zap.NewNop())
	o.Register(NewNamedAgent("alice", "alice", "gpt", ""))
	o.Register(NewNamedAgent("bob", "bob", "gpt", ""))
	o.Register(NewNamedAgent("carol", "carol", "gpt", ""))
	return o, store
}

func TestOrchestrator_HandoffAtMostOneActive(t *testing.T) {
	o, store := newTestOrchestrator()
	ctx := context.Background()

	if _, err := o.Handoff(ctx, "sess-1", "alice", "bob", "alice is offline", ""); err != nil {
		t.Fatalf("first handoff should succeed: %v", err)
	}
	b, err := o.Handoff(ctx, "sess-1", "bob", "carol", "bob is also offline", "")
	if err != nil {
		t.Fatalf("second handoff should succeed: %v", err)
	}

	active, err := store.Handoffs().FindActiveBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("expected an active handoff: %v", err)
	}
	if active.ID != b.ID {
		t.Fatalf("active handoff should be the most recent one, got %s want %s", active.ID, b.ID)
	}

	var activeCount int
	for _, h := range store.handoffs["sess-1"] {
		if h.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active handoff for the session, got %d", activeCount)
	}
}

func TestOrchestrator_DelegateUnrestrictedWithoutLink(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()

	d, err := o.Delegate(ctx, "sess-2", "alice", "bob", "summarize the backlog", entity.DelegationAsync)
	if err != nil {
		t.Fatalf("delegation with no governing link should be unrestricted: %v", err)
	}
	if d.Status() != entity.DelegationPending {
		t.Fatalf("expected a pending delegation, got %s", d.Status())
	}
}

func TestOrchestrator_DelegateRejectedByLinkDirection(t *testing.T) {
	o, store := newTestOrchestrator()
	ctx := context.Background()

	store.addLink(&entity.AgentLink{
		ID: "link-1", Source: "alice", Target: "bob", Direction: entity.LinkInbound,
	})

	if _, err := o.Delegate(ctx, "sess-3", "alice", "bob", "do a thing", entity.DelegationSync); err == nil {
		t.Fatal("an inbound-only link from alice->bob should forbid alice delegating to bob")
	}
}

func TestOrchestrator_DelegateRejectedByConcurrencyLimit(t *testing.T) {
	o, store := newTestOrchestrator()
	ctx := context.Background()

	store.addLink(&entity.AgentLink{
		ID: "link-2", Source: "alice", Target: "bob",
		Direction: entity.LinkOutbound, MaxConcurrent: 1,
	})

	if _, err := o.Delegate(ctx, "sess-4", "alice", "bob", "task one", entity.DelegationAsync); err != nil {
		t.Fatalf("first delegation under the limit should succeed: %v", err)
	}
	if _, err := o.Delegate(ctx, "sess-5", "alice", "bob", "task two", entity.DelegationAsync); err == nil {
		t.Fatal("a second concurrent delegation should be rejected once max_concurrent is reached")
	}
}

func TestOrchestrator_DelegateSyncRunsTurnAndCompletes(t *testing.T) {
	runner := &fakeRunner{response: "backlog is clear"}
	o, store := newTestOrchestratorWithRunner(runner)
	ctx := context.Background()

	d, err := o.Delegate(ctx, "sess-6", "alice", "bob", "summarize the backlog", entity.DelegationSync)
	if err != nil {
		t.Fatalf("sync delegation should succeed: %v", err)
	}
	if d.Status() != entity.DelegationCompleted {
		t.Fatalf("expected a completed delegation, got %s", d.Status())
	}
	if d.Result() != "backlog is clear" {
		t.Fatalf("expected the runner's result to be recorded, got %q", d.Result())
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected exactly one turn to run, got %d", len(runner.calls))
	}
	wantPrompt := "bob: [Delegation from alice] Task: summarize the backlog. Return a clear result."
	if runner.calls[0] != wantPrompt {
		t.Fatalf("unexpected framed prompt: %q", runner.calls[0])
	}

	persisted, err := store.Delegations().FindByID(ctx, d.ID())
	if err != nil {
		t.Fatalf("delegation should be persisted: %v", err)
	}
	if persisted.Status() != entity.DelegationCompleted {
		t.Fatalf("expected the persisted row to be completed, got %s", persisted.Status())
	}
}

func TestOrchestrator_DelegateSyncFailsOnRunnerError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("llm unavailable")}
	o, _ := newTestOrchestratorWithRunner(runner)
	ctx := context.Background()

	d, err := o.Delegate(ctx, "sess-7", "alice", "bob", "do something", entity.DelegationSync)
	if err != nil {
		t.Fatalf("Delegate itself should not error just because the turn failed: %v", err)
	}
	if d.Status() != entity.DelegationFailed {
		t.Fatalf("expected a failed delegation, got %s", d.Status())
	}
	if d.ErrorMessage() != "llm unavailable" {
		t.Fatalf("expected the runner's error to be recorded, got %q", d.ErrorMessage())
	}
}

func TestOrchestrator_UnregisterPromotesDefault(t *testing.T) {
	o, _ := newTestOrchestrator()
	if err := o.SetActive("bob"); err != nil {
		t.Fatalf("unexpected error setting active: %v", err)
	}
	if err := o.Unregister("bob"); err != nil {
		t.Fatalf("unexpected error unregistering: %v", err)
	}
	if o.Active().ID() != DefaultAgentName {
		t.Fatalf("removing the active agent should fall back to the default, got %s", o.Active().ID())
	}
	if err := o.Unregister(DefaultAgentName); err == nil {
		t.Fatal("the default agent must never be unregistered")
	}
}
