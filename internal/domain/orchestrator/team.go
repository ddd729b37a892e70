package orchestrator

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"github.com/google/uuid"
)

// CreateTeam creates a new agent team with an empty roster.
func (o *Orchestrator) CreateTeam(ctx context.Context, name, description string) (*entity.AgentTeam, error) {
	team := &entity.AgentTeam{ID: uuid.NewString(), Name: name, Description: description}
	if err := o.store.Teams().Save(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// JoinTeam adds a named agent to a team, enforcing the at-most-one-lead
// invariant.
func (o *Orchestrator) JoinTeam(ctx context.Context, teamID, agentName string, role entity.TeamMemberRole) error {
	team, err := o.store.Teams().FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if o.Get(agentName) == nil {
		return domainErrors.New(domainErrors.KindAgentNotFound, "agent not registered: "+agentName, nil)
	}
	if err := team.AddMember(agentName, role); err != nil {
		return domainErrors.Wrap(domainErrors.KindTeam, err)
	}
	return o.store.Teams().Save(ctx, team)
}

// PostTeamMessage posts a message to a team's shared channel, addressed to
// a specific agent or broadcast when to is empty.
func (o *Orchestrator) PostTeamMessage(ctx context.Context, teamID, from, to, content string) (*entity.TeamMessage, error) {
	msg := &entity.TeamMessage{
		ID: uuid.NewString(), TeamID: teamID, From: from, To: to, Content: content,
	}
	if err := o.store.Teams().SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateTeamTask adds a task to a team's shared board, optionally blocked
// on other task IDs.
func (o *Orchestrator) CreateTeamTask(ctx context.Context, teamID, title, description, createdBy string, blockedBy []string) (*entity.TeamTask, error) {
	task := &entity.TeamTask{
		ID: uuid.NewString(), TeamID: teamID, Title: title, Description: description,
		Status: entity.TeamTaskPending, CreatedBy: createdBy, BlockedBy: blockedBy,
	}
	if err := o.store.Teams().SaveTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ClaimTeamTask lets an agent claim a pending, unblocked task. Returns an
// error if the task is not currently claimable.
func (o *Orchestrator) ClaimTeamTask(ctx context.Context, teamID, taskID, agentName string) (*entity.TeamTask, error) {
	tasks, err := o.store.Teams().FindTasksByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(tasks))
	var target *entity.TeamTask
	for _, t := range tasks {
		if t.Status == entity.TeamTaskCompleted {
			completed[t.ID] = true
		}
		if t.ID == taskID {
			target = t
		}
	}
	if target == nil {
		return nil, domainErrors.New(domainErrors.KindNotFound, "team task not found", nil)
	}
	if !target.IsClaimable(completed) {
		return nil, domainErrors.New(domainErrors.KindTeam, "task is not claimable", nil)
	}
	claimed, err := o.store.Teams().ClaimTask(ctx, taskID, agentName)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domainErrors.New(domainErrors.KindTeam, "task was claimed by another agent first", nil)
	}
	target.Claim(agentName)
	return target, nil
}

// CompleteTeamTask marks a task completed with a result.
func (o *Orchestrator) CompleteTeamTask(ctx context.Context, taskID, result string) (*entity.TeamTask, error) {
	task, err := o.store.Teams().FindTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task.Complete(result)
	if err := o.store.Teams().SaveTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
