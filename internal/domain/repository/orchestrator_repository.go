package repository

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
)

// AgentLinkRepository persists delegation permission edges between named
// agents.
type AgentLinkRepository interface {
	FindByID(ctx context.Context, id string) (*entity.AgentLink, error)
	FindBetween(ctx context.Context, source, target string) (*entity.AgentLink, error)
	FindAll(ctx context.Context) ([]*entity.AgentLink, error)
	Save(ctx context.Context, link *entity.AgentLink) error
	Delete(ctx context.Context, id string) error
}

// DelegationRepository persists delegation task records created when one
// agent hands work to another.
type DelegationRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Delegation, error)
	FindPendingByTarget(ctx context.Context, target string) ([]*entity.Delegation, error)
	FindBySession(ctx context.Context, sessionID string) ([]*entity.Delegation, error)
	Save(ctx context.Context, delegation *entity.Delegation) error
	Delete(ctx context.Context, id string) error

	// ActiveDelegationCount counts delegations targeting "to" whose status
	// is pending or running — the Orchestrator's soft gate against
	// overloading a single target agent.
	ActiveDelegationCount(ctx context.Context, to string) (int64, error)
}

// HandoffRepository persists conversation handoff records, enforcing at
// most one active handoff per session.
type HandoffRepository interface {
	FindActiveBySession(ctx context.Context, sessionID string) (*entity.Handoff, error)
	Save(ctx context.Context, handoff *entity.Handoff) error
	DeactivateBySession(ctx context.Context, sessionID string) error

	// CreateActive atomically deactivates every prior active handoff for
	// handoff.SessionID and inserts handoff, under a single transaction.
	// Callers must use this instead of DeactivateBySession+Save to get the
	// at-most-one-active-per-session invariant.
	CreateActive(ctx context.Context, handoff *entity.Handoff) error
}

// TeamRepository persists agent teams and their shared task boards.
type TeamRepository interface {
	FindByID(ctx context.Context, id string) (*entity.AgentTeam, error)
	FindAll(ctx context.Context) ([]*entity.AgentTeam, error)
	Save(ctx context.Context, team *entity.AgentTeam) error
	Delete(ctx context.Context, id string) error

	FindTask(ctx context.Context, id string) (*entity.TeamTask, error)
	FindTasksByTeam(ctx context.Context, teamID string) ([]*entity.TeamTask, error)
	SaveTask(ctx context.Context, task *entity.TeamTask) error

	// ClaimTask atomically assigns taskID to agentName iff the row is still
	// pending and unassigned at the moment of update — the compare-and-set
	// that prevents two concurrent claims on the same task from both
	// succeeding. Returns claimed=false without error if the row had
	// already moved out of pending/unassigned by the time of the update.
	ClaimTask(ctx context.Context, taskID, agentName string) (claimed bool, err error)

	FindMessagesByTeam(ctx context.Context, teamID string, since int64) ([]*entity.TeamMessage, error)
	SaveMessage(ctx context.Context, msg *entity.TeamMessage) error
}

// LlmTraceRepository persists per-call usage traces for cost accounting
// and the Admin API's reporting endpoints.
type LlmTraceRepository interface {
	Save(ctx context.Context, trace *entity.LlmTrace) error
	FindByAgent(ctx context.Context, agent string, limit int) ([]*entity.LlmTrace, error)
	SumTokensSince(ctx context.Context, sinceUnix int64) (int64, error)

	// ListRecent returns the most recent traces across all agents, for the
	// Admin API's /api/v1/traces endpoint.
	ListRecent(ctx context.Context, limit int) ([]*entity.LlmTrace, error)

	// CostByModel aggregates token counts and call counts per model since
	// sinceUnix, for the Admin API's /api/v1/traces/cost endpoint.
	CostByModel(ctx context.Context, sinceUnix int64) ([]*entity.ModelCostSummary, error)
}
