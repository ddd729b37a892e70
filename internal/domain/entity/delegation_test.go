package entity

import "testing"

func TestDelegation_MonotoneAdvance(t *testing.T) {
	d := NewDelegation("d1", "sess-1", "alice", "bob", "summarize the thread", DelegationAsync)

	if d.Status() != DelegationPending {
		t.Fatalf("new delegation should start pending, got %s", d.Status())
	}
	if d.CompletedAt() != nil {
		t.Fatal("completed_at must be unset before a terminal status")
	}

	if err := d.Advance(DelegationRunning); err != nil {
		t.Fatalf("pending -> running should be allowed: %v", err)
	}

	if err := d.Advance(DelegationPending); err == nil {
		t.Fatal("expected an error moving backward from running to pending")
	}

	if err := d.Complete("summary: ..."); err != nil {
		t.Fatalf("running -> completed should be allowed: %v", err)
	}
	if d.Status() != DelegationCompleted {
		t.Fatalf("expected completed status, got %s", d.Status())
	}
	if d.CompletedAt() == nil {
		t.Fatal("completed_at must be set once the status is terminal")
	}
	if d.Result() != "summary: ..." {
		t.Fatalf("unexpected result: %q", d.Result())
	}
}

func TestDelegation_FailIsTerminal(t *testing.T) {
	d := NewDelegation("d2", "sess-2", "alice", "bob", "fetch a price", DelegationSync)
	if err := d.Fail("target agent unreachable"); err != nil {
		t.Fatalf("pending -> failed should be allowed: %v", err)
	}
	if !d.Status().IsTerminal() {
		t.Fatal("failed should be a terminal status")
	}
	if d.CompletedAt() == nil {
		t.Fatal("completed_at must be set on failure too")
	}
	if d.ErrorMessage() != "target agent unreachable" {
		t.Fatalf("unexpected error message: %q", d.ErrorMessage())
	}

	if err := d.Advance(DelegationRunning); err == nil {
		t.Fatal("expected an error reviving a terminal delegation")
	}
}
