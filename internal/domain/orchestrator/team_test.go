package orchestrator

import (
	"context"
	"testing"
)

// TestOrchestrator_TeamTaskClaimWithDependency checks that a task blocked by
// an incomplete dependency is not claimable: T2 is blocked by T1 and must
// stay unclaimable until T1 completes.
func TestOrchestrator_TeamTaskClaimWithDependency(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()

	team, err := o.CreateTeam(ctx, "ops", "operations team")
	if err != nil {
		t.Fatalf("unexpected error creating team: %v", err)
	}

	t1, err := o.CreateTeamTask(ctx, team.ID, "gather metrics", "", "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error creating t1: %v", err)
	}
	t2, err := o.CreateTeamTask(ctx, team.ID, "write report", "", "alice", []string{t1.ID})
	if err != nil {
		t.Fatalf("unexpected error creating t2: %v", err)
	}

	if _, err := o.ClaimTeamTask(ctx, team.ID, t2.ID, "bob"); err == nil {
		t.Fatal("t2 should not be claimable before its blocker t1 completes")
	}

	if _, err := o.ClaimTeamTask(ctx, team.ID, t1.ID, "bob"); err != nil {
		t.Fatalf("t1 has no blockers and should be claimable: %v", err)
	}

	if _, err := o.ClaimTeamTask(ctx, team.ID, t2.ID, "carol"); err == nil {
		t.Fatal("t2 should still be blocked: t1 is in_progress, not completed")
	}

	if _, err := o.CompleteTeamTask(ctx, t1.ID, "metrics gathered"); err != nil {
		t.Fatalf("unexpected error completing t1: %v", err)
	}

	claimed, err := o.ClaimTeamTask(ctx, team.ID, t2.ID, "carol")
	if err != nil {
		t.Fatalf("t2 should be claimable once t1 is completed: %v", err)
	}
	if claimed.AssignedTo != "carol" {
		t.Fatalf("expected t2 assigned to carol, got %q", claimed.AssignedTo)
	}
}

func TestOrchestrator_TeamTaskClaimIsExclusive(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()

	team, _ := o.CreateTeam(ctx, "ops", "")
	task, _ := o.CreateTeamTask(ctx, team.ID, "handle incident", "", "alice", nil)

	if _, err := o.ClaimTeamTask(ctx, team.ID, task.ID, "bob"); err != nil {
		t.Fatalf("first claim should succeed: %v", err)
	}
	if _, err := o.ClaimTeamTask(ctx, team.ID, task.ID, "carol"); err == nil {
		t.Fatal("a second claim on an already-claimed task must be rejected")
	}
}

func TestOrchestrator_TeamAtMostOneLead(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()

	team, _ := o.CreateTeam(ctx, "ops", "")
	if err := o.JoinTeam(ctx, team.ID, "alice", "lead"); err != nil {
		t.Fatalf("first lead join should succeed: %v", err)
	}
	if err := o.JoinTeam(ctx, team.ID, "bob", "lead"); err == nil {
		t.Fatal("a second lead join should be rejected")
	}
}
