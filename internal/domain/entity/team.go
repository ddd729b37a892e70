package entity

import "time"

// TeamMemberRole distinguishes the single team lead from regular members.
type TeamMemberRole string

const (
	TeamRoleLead   TeamMemberRole = "lead"
	TeamRoleMember TeamMemberRole = "member"
)

// TeamMember is one agent's membership record within an AgentTeam.
type TeamMember struct {
	Agent    string
	Role     TeamMemberRole
	JoinedAt time.Time
}

// AgentTeam groups named agents around a shared task board. At most one
// member may hold the lead role at any time.
type AgentTeam struct {
	ID          string
	Name        string
	Description string
	Members     []TeamMember
}

// HasLead reports whether the team already has a lead assigned.
func (t *AgentTeam) HasLead() bool {
	for _, m := range t.Members {
		if m.Role == TeamRoleLead {
			return true
		}
	}
	return false
}

// AddMember appends a member, enforcing the at-most-one-lead invariant.
func (t *AgentTeam) AddMember(agent string, role TeamMemberRole) error {
	if role == TeamRoleLead && t.HasLead() {
		return ErrTeamAlreadyHasLead
	}
	t.Members = append(t.Members, TeamMember{Agent: agent, Role: role, JoinedAt: time.Now().UTC()})
	return nil
}

// TeamTaskStatus is the lifecycle state of a team task board entry.
type TeamTaskStatus string

const (
	TeamTaskPending    TeamTaskStatus = "pending"
	TeamTaskInProgress TeamTaskStatus = "in_progress"
	TeamTaskBlocked    TeamTaskStatus = "blocked"
	TeamTaskCompleted  TeamTaskStatus = "completed"
	TeamTaskFailed     TeamTaskStatus = "failed"
)

// TeamTask is a single dependency-ordered work item on a team's task board.
type TeamTask struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	Status      TeamTaskStatus
	CreatedBy   string
	AssignedTo  string // empty = unclaimed
	BlockedBy   []string
	Result      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsClaimable reports whether the task can be claimed given the set of
// already-completed task IDs: it must be pending, unassigned, and every
// blocking task must be in the completed set.
func (t *TeamTask) IsClaimable(completed map[string]bool) bool {
	if t.Status != TeamTaskPending || t.AssignedTo != "" {
		return false
	}
	for _, dep := range t.BlockedBy {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// Claim assigns the task to agent, transitioning it to in_progress. The
// caller is responsible for making this a compare-and-set against the
// persisted row so two concurrent claims cannot both succeed.
func (t *TeamTask) Claim(agent string) {
	t.AssignedTo = agent
	t.Status = TeamTaskInProgress
	t.UpdatedAt = time.Now().UTC()
}

// Complete marks the task completed with a result.
func (t *TeamTask) Complete(result string) {
	t.Status = TeamTaskCompleted
	t.Result = result
	t.UpdatedAt = time.Now().UTC()
}

// TeamMessage is a broadcast or directed note on a team's shared channel.
type TeamMessage struct {
	ID        string
	TeamID    string
	From      string
	To        string // empty = broadcast
	Content   string
	Read      bool
	CreatedAt time.Time
}

// IsUnreadFor reports whether this message counts as unread for agent —
// it must not be authored by them, and must be addressed to them or broadcast.
func (m *TeamMessage) IsUnreadFor(agent string) bool {
	if m.Read || m.From == agent {
		return false
	}
	return m.To == "" || m.To == agent
}
