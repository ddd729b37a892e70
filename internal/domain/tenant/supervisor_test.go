package tenant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"go.uber.org/zap"
)

// fakeTenantRepo is an in-memory repository.TenantRepository for exercising
// the Supervisor's port allocation and lifecycle bookkeeping without a
// database.
type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*entity.Tenant
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{tenants: make(map[string]*entity.Tenant)}
}

func (f *fakeTenantRepo) FindByID(ctx context.Context, id string) (*entity.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

func (f *fakeTenantRepo) FindBySlug(ctx context.Context, slug string) (*entity.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Slug() == slug {
			return t, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeTenantRepo) FindAll(ctx context.Context) ([]*entity.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Tenant, 0, len(f.tenants))
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTenantRepo) Save(ctx context.Context, t *entity.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[t.ID()] = t
	return nil
}

func (f *fakeTenantRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tenants, id)
	return nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func TestSupervisor_AllocatePort_StartsAtBase(t *testing.T) {
	repo := newFakeTenantRepo()
	sup := NewSupervisor(Config{BasePort: 19000}, repo, nil, zap.NewNop())

	port, err := sup.AllocatePort(context.Background())
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	if port != 19000 {
		t.Errorf("expected first port to be base port 19000, got %d", port)
	}
}

func TestSupervisor_AllocatePort_SkipsUsedPorts(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant, _ := entity.NewTenant("t1", "Acme", "acme", entity.TenantLimits{})
	tenant.SetPort(19005)
	_ = repo.Save(context.Background(), tenant)

	sup := NewSupervisor(Config{BasePort: 19000}, repo, nil, zap.NewNop())
	port, err := sup.AllocatePort(context.Background())
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	if port != 19006 {
		t.Errorf("expected next port after highest assigned, got %d", port)
	}
}

func TestSupervisor_IsRunning_FalseForUnknownTenant(t *testing.T) {
	repo := newFakeTenantRepo()
	sup := NewSupervisor(Config{BasePort: 19000}, repo, nil, zap.NewNop())
	if sup.IsRunning("nonexistent") {
		t.Error("expected unknown tenant to not be running")
	}
}

func TestSupervisor_HealthCheck_FailsWhenNothingListening(t *testing.T) {
	repo := newFakeTenantRepo()
	sup := NewSupervisor(Config{BasePort: 19000, HealthTimeout: 200 * time.Millisecond}, repo, nil, zap.NewNop())
	tenant, _ := entity.NewTenant("t1", "Acme", "acme", entity.TenantLimits{})
	tenant.SetPort(1) // port 1 should refuse connections in any sandboxed test env
	if err := sup.HealthCheck(tenant); err == nil {
		t.Error("expected health check against an unused port to fail")
	}
}

func TestSupervisor_SweepHealth_MarksUntrackedTenantsStopped(t *testing.T) {
	repo := newFakeTenantRepo()
	sup := NewSupervisor(Config{BasePort: 19000, HealthTimeout: 200 * time.Millisecond}, repo, nil, zap.NewNop())

	tenant, _ := entity.NewTenant("t1", "Acme", "acme", entity.TenantLimits{})
	tenant.SetPort(1)
	tenant.MarkRunning(1234)
	_ = repo.Save(context.Background(), tenant)

	sup.SweepHealth(context.Background(), []*entity.Tenant{tenant})

	if tenant.Status() != entity.TenantStatusStopped {
		t.Errorf("expected untracked running tenant to flip to stopped, got %s", tenant.Status())
	}
}
