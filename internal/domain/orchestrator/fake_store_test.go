package orchestrator

import (
	"context"
	"sync"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
)

// fakeStore is a minimal in-memory datastore.Store for exercising the
// Orchestrator's delegation and handoff logic without a real database.
// Repositories the orchestrator tests don't touch are nil, and methods
// they don't call are no-ops returning zero values.
type fakeStore struct {
	mu          sync.Mutex
	links       []*entity.AgentLink
	delegations map[string]*entity.Delegation
	handoffs    map[string][]*entity.Handoff // keyed by session id
	teams       map[string]*entity.AgentTeam
	tasks       map[string]*entity.TeamTask
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		delegations: make(map[string]*entity.Delegation),
		handoffs:    make(map[string][]*entity.Handoff),
		teams:       make(map[string]*entity.AgentTeam),
		tasks:       make(map[string]*entity.TeamTask),
	}
}

func (s *fakeStore) Agents() repository.AgentRepository     { return nil }
func (s *fakeStore) Messages() repository.MessageRepository { return nil }
func (s *fakeStore) Tenants() repository.TenantRepository   { return nil }
func (s *fakeStore) Users() repository.UserRepository       { return nil }
func (s *fakeStore) Teams() repository.TeamRepository       { return (*fakeTeamRepo)(s) }
func (s *fakeStore) LlmTraces() repository.LlmTraceRepository { return nil }
func (s *fakeStore) Audit() repository.AuditRepository       { return nil }

func (s *fakeStore) AgentLinks() repository.AgentLinkRepository   { return (*fakeAgentLinkRepo)(s) }
func (s *fakeStore) Delegations() repository.DelegationRepository { return (*fakeDelegationRepo)(s) }
func (s *fakeStore) Handoffs() repository.HandoffRepository       { return (*fakeHandoffRepo)(s) }

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                      { return nil }
func (s *fakeStore) Ping(ctx context.Context) error    { return nil }

func (s *fakeStore) addLink(l *entity.AgentLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, l)
}

type fakeAgentLinkRepo fakeStore

func (r *fakeAgentLinkRepo) FindByID(ctx context.Context, id string) (*entity.AgentLink, error) {
	return nil, domainErrors.New(domainErrors.KindNotFound, "not found", nil)
}

func (r *fakeAgentLinkRepo) FindBetween(ctx context.Context, source, target string) (*entity.AgentLink, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if (l.Source == source && l.Target == target) || (l.Source == target && l.Target == source) {
			return l, nil
		}
	}
	return nil, domainErrors.New(domainErrors.KindNotFound, "agent link not found", nil)
}

func (r *fakeAgentLinkRepo) FindAll(ctx context.Context) ([]*entity.AgentLink, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.AgentLink(nil), s.links...), nil
}

func (r *fakeAgentLinkRepo) Save(ctx context.Context, link *entity.AgentLink) error {
	(*fakeStore)(r).addLink(link)
	return nil
}

func (r *fakeAgentLinkRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeDelegationRepo fakeStore

func (r *fakeDelegationRepo) FindByID(ctx context.Context, id string) (*entity.Delegation, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegations[id]
	if !ok {
		return nil, domainErrors.New(domainErrors.KindNotFound, "delegation not found", nil)
	}
	return d, nil
}

func (r *fakeDelegationRepo) FindPendingByTarget(ctx context.Context, target string) ([]*entity.Delegation, error) {
	return nil, nil
}

func (r *fakeDelegationRepo) FindBySession(ctx context.Context, sessionID string) ([]*entity.Delegation, error) {
	return nil, nil
}

func (r *fakeDelegationRepo) Save(ctx context.Context, delegation *entity.Delegation) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegations[delegation.ID()] = delegation
	return nil
}

func (r *fakeDelegationRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *fakeDelegationRepo) ActiveDelegationCount(ctx context.Context, to string) (int64, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.delegations {
		if d.To() != to {
			continue
		}
		if d.Status() == entity.DelegationPending || d.Status() == entity.DelegationRunning {
			n++
		}
	}
	return n, nil
}

type fakeHandoffRepo fakeStore

func (r *fakeHandoffRepo) FindActiveBySession(ctx context.Context, sessionID string) (*entity.Handoff, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handoffs[sessionID] {
		if h.Active {
			return h, nil
		}
	}
	return nil, domainErrors.New(domainErrors.KindNotFound, "no active handoff", nil)
}

func (r *fakeHandoffRepo) Save(ctx context.Context, handoff *entity.Handoff) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs[handoff.SessionID] = append(s.handoffs[handoff.SessionID], handoff)
	return nil
}

func (r *fakeHandoffRepo) DeactivateBySession(ctx context.Context, sessionID string) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handoffs[sessionID] {
		h.Active = false
	}
	return nil
}

// CreateActive mirrors the GORM backend's transactional semantics: every
// prior active row for the session is deactivated before the new one is
// appended, all under the store's single mutex.
func (r *fakeHandoffRepo) CreateActive(ctx context.Context, handoff *entity.Handoff) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handoffs[handoff.SessionID] {
		h.Active = false
	}
	s.handoffs[handoff.SessionID] = append(s.handoffs[handoff.SessionID], handoff)
	return nil
}

type fakeTeamRepo fakeStore

func (r *fakeTeamRepo) FindByID(ctx context.Context, id string) (*entity.AgentTeam, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, domainErrors.New(domainErrors.KindNotFound, "team not found", nil)
	}
	return team, nil
}

func (r *fakeTeamRepo) FindAll(ctx context.Context) ([]*entity.AgentTeam, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.AgentTeam, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTeamRepo) Save(ctx context.Context, team *entity.AgentTeam) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
	return nil
}

func (r *fakeTeamRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *fakeTeamRepo) FindTask(ctx context.Context, id string) (*entity.TeamTask, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domainErrors.New(domainErrors.KindNotFound, "team task not found", nil)
	}
	return task, nil
}

func (r *fakeTeamRepo) FindTasksByTeam(ctx context.Context, teamID string) ([]*entity.TeamTask, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.TeamTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.TeamID == teamID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) SaveTask(ctx context.Context, task *entity.TeamTask) error {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// ClaimTask mirrors the GORM backend's conditional-update semantics: the
// claim only takes effect if the task is still pending and unassigned.
func (r *fakeTeamRepo) ClaimTask(ctx context.Context, taskID, agentName string) (bool, error) {
	s := (*fakeStore)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, domainErrors.New(domainErrors.KindNotFound, "team task not found", nil)
	}
	if task.Status != entity.TeamTaskPending || task.AssignedTo != "" {
		return false, nil
	}
	task.AssignedTo = agentName
	task.Status = entity.TeamTaskInProgress
	return true, nil
}

func (r *fakeTeamRepo) FindMessagesByTeam(ctx context.Context, teamID string, since int64) ([]*entity.TeamMessage, error) {
	return nil, nil
}

func (r *fakeTeamRepo) SaveMessage(ctx context.Context, msg *entity.TeamMessage) error {
	return nil
}
