package application

import (
	"context"
	"fmt"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/orchestrator"
	"github.com/bizclaw/bizclaw/internal/interfaces/telegram"
	"github.com/google/uuid"
)

// orchestratorController adapts the domain Orchestrator to
// telegram.OrchestratorController, translating NamedAgent/Delegation/
// Handoff domain types into the plain structs the telegram package is
// allowed to depend on. Mirrors toolBridge's role as the one adapter
// layer between a domain package and an interfaces package.
type orchestratorController struct {
	orch *orchestrator.Orchestrator
}

func newOrchestratorController(orch *orchestrator.Orchestrator) *orchestratorController {
	return &orchestratorController{orch: orch}
}

func toAgentSummary(a *orchestrator.NamedAgent, activeID string) telegram.AgentSummary {
	return telegram.AgentSummary{
		ID:                 a.ID(),
		Name:               a.Name(),
		Model:              a.Model(),
		Status:             string(a.Status()),
		ActiveSession:      a.ActiveSession(),
		PendingDelegations: a.PendingDelegations(),
		Active:             a.ID() == activeID,
	}
}

func (c *orchestratorController) ListAgents() []telegram.AgentSummary {
	activeID := c.orch.Active().ID()
	agents := c.orch.List()
	out := make([]telegram.AgentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentSummary(a, activeID))
	}
	return out
}

func (c *orchestratorController) ActiveAgent() telegram.AgentSummary {
	active := c.orch.Active()
	return toAgentSummary(active, active.ID())
}

func (c *orchestratorController) SwitchAgent(id string) error {
	return c.orch.SetActive(id)
}

func (c *orchestratorController) SpawnAgent(ctx context.Context, name, model, workspace string) (telegram.AgentSummary, error) {
	id := uuid.NewString()
	agent := orchestrator.NewNamedAgent(id, name, model, workspace)
	agent.SetStatus(orchestrator.StatusIdle)
	c.orch.Register(agent)
	return toAgentSummary(agent, c.orch.Active().ID()), nil
}

func (c *orchestratorController) TerminateAgent(id string) error {
	return c.orch.Unregister(id)
}

func (c *orchestratorController) Delegate(ctx context.Context, to, task string, sync bool) (string, error) {
	from := c.orch.Active().ID()
	mode := entity.DelegationAsync
	if sync {
		mode = entity.DelegationSync
	}
	sessionID := fmt.Sprintf("delegate-%s", uuid.NewString())
	d, err := c.orch.Delegate(ctx, sessionID, from, to, task, mode)
	if err != nil {
		return "", err
	}
	if !sync {
		return "", nil
	}
	if d.Status() == entity.DelegationFailed {
		return "", fmt.Errorf("%s", d.ErrorMessage())
	}
	return d.Result(), nil
}

func (c *orchestratorController) Handoff(ctx context.Context, sessionID, to, reason string) error {
	from := c.orch.Active().ID()
	_, err := c.orch.Handoff(ctx, sessionID, from, to, reason, "")
	return err
}
