package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/bizclaw/bizclaw/internal/domain/datastore"
	"github.com/bizclaw/bizclaw/internal/domain/entity"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAgentName is promoted automatically when an orchestrator pool is
// created empty, mirroring AgentRegistry's always-present "default" agent —
// callers can route to it before any named agent has been explicitly
// registered.
const DefaultAgentName = "default"

// TurnRunner drives one turn of a named agent's conversation loop to
// completion and returns its final text. The application wires this to
// the shared ReAct engine (the same one every other interface drives) so
// that a synchronous delegation or a scheduled agent-prompt task actually
// produces a result instead of leaving a pending row behind.
type TurnRunner interface {
	RunTurn(ctx context.Context, agentID, prompt string) (string, error)
}

// Orchestrator owns the named-agent pool for one tenant process: an outer
// lock guards the pool map itself (register/unregister/list), while each
// NamedAgent's own locks guard its metadata and conversation state. The
// outer lock is only ever held for map bookkeeping — never across a
// delegation or LLM call — so one agent's long-running turn never blocks
// registry reads for the rest of the pool.
type Orchestrator struct {
	mu     sync.RWMutex
	agents map[string]*NamedAgent
	active string

	store  datastore.Store
	runner TurnRunner
	log    *zap.Logger
}

// NewOrchestrator builds a pool seeded with one default agent. runner may
// be nil, in which case synchronous delegations and agent-prompt tasks
// fail fast instead of hanging — every live wiring must supply one.
func NewOrchestrator(store datastore.Store, runner TurnRunner, log *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		agents: make(map[string]*NamedAgent),
		store:  store,
		runner: runner,
		log:    log,
	}
	def := NewNamedAgent(DefaultAgentName, DefaultAgentName, "", "")
	def.SetStatus(StatusRunning)
	o.agents[DefaultAgentName] = def
	o.active = DefaultAgentName
	return o
}

// Register adds (or replaces) a named agent in the pool.
func (o *Orchestrator) Register(agent *NamedAgent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents[agent.ID()] = agent
}

// Unregister removes an agent from the pool. The default agent can never
// be unregistered. Removing the currently active agent falls back to the
// default.
func (o *Orchestrator) Unregister(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id == DefaultAgentName {
		return domainErrors.New(domainErrors.KindAgentNotFound, "cannot unregister the default agent", nil)
	}
	if _, ok := o.agents[id]; !ok {
		return domainErrors.New(domainErrors.KindAgentNotFound, "agent not found: "+id, nil)
	}
	delete(o.agents, id)
	if o.active == id {
		o.active = DefaultAgentName
	}
	return nil
}

// Get returns a named agent by ID, or nil.
func (o *Orchestrator) Get(id string) *NamedAgent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.agents[id]
}

// List returns every registered agent.
func (o *Orchestrator) List() []*NamedAgent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*NamedAgent, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, a)
	}
	return out
}

// SetActive changes the pool's default routing target.
func (o *Orchestrator) SetActive(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.agents[id]; !ok {
		return domainErrors.New(domainErrors.KindAgentNotFound, "agent not found: "+id, nil)
	}
	o.active = id
	return nil
}

// Active returns the currently active agent.
func (o *Orchestrator) Active() *NamedAgent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.agents[o.active]
}

// Delegate records a task handed from one named agent to another, gated by
// an AgentLink's direction and concurrency limit. In sync mode Delegate
// runs the target agent's turn inline and returns the delegation already
// completed or failed. In async mode the delegation row is saved as
// pending and Delegate returns immediately; nothing in this package runs
// the target agent's turn for it.
func (o *Orchestrator) Delegate(ctx context.Context, sessionID, from, to, task string, mode entity.DelegationMode) (*entity.Delegation, error) {
	o.mu.RLock()
	fromAgent, fromOK := o.agents[from]
	_, toOK := o.agents[to]
	o.mu.RUnlock()
	if !fromOK || !toOK {
		return nil, domainErrors.New(domainErrors.KindAgentNotFound, "delegation endpoint not registered", nil)
	}

	// A governing AgentLink is optional: when none exists for this pair the
	// delegation proceeds unrestricted. Only a link that's actually found
	// can forbid the direction or gate on concurrency.
	link, err := o.store.AgentLinks().FindBetween(ctx, from, to)
	if err != nil && !domainErrors.IsNotFound(err) {
		return nil, err
	}
	if link != nil {
		if !link.Allows(from, to) {
			return nil, domainErrors.New(domainErrors.KindNoPermission, "agent link direction forbids this delegation", nil)
		}
		if link.MaxConcurrent > 0 {
			activeForTarget, err := o.store.Delegations().ActiveDelegationCount(ctx, to)
			if err != nil {
				return nil, err
			}
			if activeForTarget >= int64(link.MaxConcurrent) {
				return nil, domainErrors.New(domainErrors.KindDelegation, "delegation concurrency limit reached", nil)
			}
		}
	}

	delegation := entity.NewDelegation(uuid.NewString(), sessionID, from, to, task, mode)
	if err := o.store.Delegations().Save(ctx, delegation); err != nil {
		return nil, err
	}

	fromAgent.IncPendingDelegations()
	o.log.Info("delegation created",
		zap.String("from", from), zap.String("to", to), zap.String("mode", string(mode)))

	if mode == entity.DelegationSync {
		framed := fmt.Sprintf("[Delegation from %s] Task: %s. Return a clear result.", from, task)
		result, runErr := o.runTurn(ctx, to, framed)
		if runErr != nil {
			if err := o.CompleteDelegation(ctx, delegation.ID(), "", runErr.Error()); err != nil {
				o.log.Error("failed to mark delegation failed", zap.String("id", delegation.ID()), zap.Error(err))
			}
		} else {
			if err := o.CompleteDelegation(ctx, delegation.ID(), result, ""); err != nil {
				o.log.Error("failed to mark delegation completed", zap.String("id", delegation.ID()), zap.Error(err))
			}
		}
		updated, err := o.store.Delegations().FindByID(ctx, delegation.ID())
		if err == nil {
			delegation = updated
		}
	}

	return delegation, nil
}

// runTurn drives one turn on the named agent identified by agentID,
// serialized behind that agent's turn lock so a synchronous delegation
// never interleaves with another conversation turn on the same agent.
func (o *Orchestrator) runTurn(ctx context.Context, agentID, prompt string) (string, error) {
	if o.runner == nil {
		return "", domainErrors.New(domainErrors.KindDelegation, "no turn runner configured for this orchestrator", nil)
	}
	agent := o.Get(agentID)
	if agent == nil {
		return "", domainErrors.New(domainErrors.KindAgentNotFound, "agent not found: "+agentID, nil)
	}

	var result string
	var runErr error
	agent.WithTurnLock(func() {
		result, runErr = o.runner.RunTurn(ctx, agentID, prompt)
	})
	return result, runErr
}

// Prompt implements scheduler.AgentPrompter, letting the scheduler engine
// run ActionAgentPrompt tasks against the same named-agent pool that
// delegation and handoff operate on.
func (o *Orchestrator) Prompt(ctx context.Context, agentName, prompt string) (string, error) {
	return o.runTurn(ctx, agentName, prompt)
}

// CompleteDelegation advances a delegation to completed or failed and
// releases the originating agent's concurrency slot.
func (o *Orchestrator) CompleteDelegation(ctx context.Context, delegationID, result, errMsg string) error {
	d, err := o.store.Delegations().FindByID(ctx, delegationID)
	if err != nil {
		return err
	}

	if errMsg != "" {
		if err := d.Fail(errMsg); err != nil {
			return domainErrors.Wrap(domainErrors.KindDelegation, err)
		}
	} else {
		if err := d.Complete(result); err != nil {
			return domainErrors.Wrap(domainErrors.KindDelegation, err)
		}
	}
	if err := o.store.Delegations().Save(ctx, d); err != nil {
		return err
	}

	if from := o.Get(d.From()); from != nil {
		from.DecPendingDelegations()
	}
	return nil
}

// Handoff transfers ownership of a session's conversation from one agent
// to another. The prior active handoff for the session (if any) is
// deactivated atomically before the new one is created, so at most one
// handoff is ever active per session.
func (o *Orchestrator) Handoff(ctx context.Context, sessionID, from, to, reason, contextSummary string) (*entity.Handoff, error) {
	o.mu.RLock()
	fromAgent, fromOK := o.agents[from]
	toAgent, toOK := o.agents[to]
	o.mu.RUnlock()
	if !fromOK || !toOK {
		return nil, domainErrors.New(domainErrors.KindAgentNotFound, "handoff endpoint not registered", nil)
	}

	h := entity.NewHandoff(uuid.NewString(), from, to, sessionID, reason, contextSummary)
	if err := o.store.Handoffs().CreateActive(ctx, h); err != nil {
		return nil, err
	}

	fromAgent.EndSession(sessionID)
	toAgent.BeginSession(sessionID)

	o.log.Info("conversation handed off",
		zap.String("session", sessionID), zap.String("from", from), zap.String("to", to))

	return h, nil
}
