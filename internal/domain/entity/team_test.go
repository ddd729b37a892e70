package entity

import "testing"

func TestTeamTask_IsClaimable(t *testing.T) {
	t1 := &TeamTask{ID: "t1", Status: TeamTaskPending}
	t2 := &TeamTask{ID: "t2", Status: TeamTaskPending, BlockedBy: []string{"t1"}}

	completed := map[string]bool{}
	if t1.IsClaimable(completed) != true {
		t.Fatal("t1 has no blockers and should be claimable")
	}
	if t2.IsClaimable(completed) {
		t.Fatal("t2 is blocked by t1 which is not yet completed")
	}

	t1.Claim("worker-a")
	if t1.Status != TeamTaskInProgress || t1.AssignedTo != "worker-a" {
		t.Fatalf("unexpected state after claim: %+v", t1)
	}
	if t1.IsClaimable(completed) {
		t.Fatal("an assigned task must not be claimable again")
	}

	t1.Complete("done")
	completed["t1"] = true
	if !t2.IsClaimable(completed) {
		t.Fatal("t2 should be claimable once its blocker is completed")
	}
}

func TestTeamTask_IsClaimable_RejectsNonPending(t *testing.T) {
	blocked := &TeamTask{ID: "t3", Status: TeamTaskBlocked}
	if blocked.IsClaimable(map[string]bool{}) {
		t.Fatal("a task in a non-pending status must not be claimable")
	}
}

func TestAgentTeam_AtMostOneLead(t *testing.T) {
	team := &AgentTeam{ID: "team-1", Name: "ops"}
	if err := team.AddMember("alice", TeamRoleLead); err != nil {
		t.Fatalf("first lead should be accepted: %v", err)
	}
	if err := team.AddMember("bob", TeamRoleLead); err == nil {
		t.Fatal("expected error adding a second lead")
	}
	if err := team.AddMember("bob", TeamRoleMember); err != nil {
		t.Fatalf("member role should be accepted: %v", err)
	}
	if !team.HasLead() {
		t.Fatal("team should still have its original lead")
	}
}

func TestTeamMessage_IsUnreadFor(t *testing.T) {
	broadcast := &TeamMessage{From: "alice", To: ""}
	if !broadcast.IsUnreadFor("bob") {
		t.Fatal("unread broadcast should count as unread for bob")
	}
	if broadcast.IsUnreadFor("alice") {
		t.Fatal("a message never counts as unread for its own author")
	}

	directed := &TeamMessage{From: "alice", To: "carol"}
	if directed.IsUnreadFor("bob") {
		t.Fatal("a directed message is not unread for an uninvolved agent")
	}
	if !directed.IsUnreadFor("carol") {
		t.Fatal("a directed message should be unread for its recipient")
	}

	read := &TeamMessage{From: "alice", To: "carol", Read: true}
	if read.IsUnreadFor("carol") {
		t.Fatal("a read message must never count as unread")
	}
}
