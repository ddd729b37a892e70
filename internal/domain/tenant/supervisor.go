package tenant

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"go.uber.org/zap"
)

// Config controls how the Supervisor spawns and watches per-tenant
// processes. Grounded on ProcessSandbox's Config, generalized from a
// single shared sandbox binary to one OS process per tenant.
type Config struct {
	// TenantBinary is the path to the per-tenant process entrypoint.
	TenantBinary string
	// DataDir is the parent directory under which each tenant gets its
	// own "<DataDir>/<slug>" working directory.
	DataDir string
	// BasePort is the first port handed out; each new tenant gets
	// max(already-assigned ports)+1, starting here.
	BasePort int
	// HealthInterval is how often the Supervisor probes running
	// tenants' health endpoints.
	HealthInterval time.Duration
	// HealthTimeout bounds each individual health probe.
	HealthTimeout time.Duration
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		TenantBinary:   "bizclaw-tenant",
		DataDir:        "./data/tenants",
		BasePort:       19000,
		HealthInterval: 15 * time.Second,
		HealthTimeout:  3 * time.Second,
	}
}

// process tracks the live OS process backing a running tenant.
type process struct {
	cmd       *exec.Cmd
	port      int
	startedAt time.Time
}

// Supervisor owns the lifecycle of every tenant's dedicated OS process:
// spawning it, allocating its port, probing its health, and stopping it.
// Grounded on ProcessSandbox's CommandContext+SysProcAttr spawn pattern,
// generalized from a short-lived sandboxed command to a long-running
// per-tenant server process tracked for the process's full lifetime.
type Supervisor struct {
	cfg   Config
	repo  repository.TenantRepository
	audit repository.AuditRepository
	log   *zap.Logger
	mu    sync.Mutex
	procs map[string]*process // tenant ID -> live process
}

// NewSupervisor builds a Supervisor backed by the given tenant and audit
// repositories. audit may be nil in tests that don't care about the
// sweep's audit trail.
func NewSupervisor(cfg Config, repo repository.TenantRepository, audit repository.AuditRepository, log *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, repo: repo, audit: audit, log: log, procs: make(map[string]*process)}
}

func (s *Supervisor) appendAudit(ctx context.Context, tenantID, action, detail string) {
	if s.audit == nil {
		return
	}
	event := entity.NewAuditEvent(uuid.NewString(), tenantID, "system", action, detail)
	if err := s.audit.Append(ctx, event); err != nil {
		s.log.Warn("failed to append audit event", zap.String("action", action), zap.Error(err))
	}
}

// AllocatePort returns the next free port: one past the highest port
// currently assigned to any known tenant, or BasePort if none exist.
func (s *Supervisor) AllocatePort(ctx context.Context) (int, error) {
	tenants, err := s.repo.FindAll(ctx)
	if err != nil {
		return 0, domainErrors.Wrap(domainErrors.KindDatabase, err)
	}
	max := s.cfg.BasePort - 1
	for _, t := range tenants {
		if t.Port() > max {
			max = t.Port()
		}
	}
	return max + 1, nil
}

// Start spawns the OS process for a tenant already persisted with a port
// assigned, and tracks it for health monitoring. Mirrors ProcessSandbox's
// Execute but detached: the process outlives this call, running under its
// own process group so a Supervisor restart can't orphan-kill it by
// signaling the parent's group.
func (s *Supervisor) Start(ctx context.Context, t *entity.Tenant) error {
	s.mu.Lock()
	if _, running := s.procs[t.ID()]; running {
		s.mu.Unlock()
		return domainErrors.New(domainErrors.KindConflict, "tenant already running: "+t.Slug(), nil)
	}
	s.mu.Unlock()

	workDir := filepath.Join(s.cfg.DataDir, t.Slug())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create tenant data dir: %w", err)
	}

	cmd := exec.Command(s.cfg.TenantBinary,
		"--port", fmt.Sprintf("%d", t.Port()),
		"--data-dir", workDir,
		"--tenant-id", t.ID(),
		"--tenant-slug", t.Slug(),
		"--model", t.Model(),
		"--provider", t.Provider(),
	)
	cmd.Dir = workDir
	cmd.Stdout = mustLogFile(workDir, "stdout.log")
	cmd.Stderr = mustLogFile(workDir, "stderr.log")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		t.MarkError()
		_ = s.repo.Save(ctx, t)
		return fmt.Errorf("failed to start tenant process: %w", err)
	}

	t.MarkRunning(cmd.Process.Pid)
	if err := s.repo.Save(ctx, t); err != nil {
		return domainErrors.Wrap(domainErrors.KindDatabase, err)
	}

	s.mu.Lock()
	s.procs[t.ID()] = &process{cmd: cmd, port: t.Port(), startedAt: time.Now().UTC()}
	s.mu.Unlock()

	go s.reap(t.ID(), cmd)

	s.log.Info("tenant process started",
		zap.String("tenant", t.Slug()), zap.Int("pid", cmd.Process.Pid), zap.Int("port", t.Port()))
	s.appendAudit(ctx, t.ID(), "tenant.started", fmt.Sprintf("pid=%d port=%d", cmd.Process.Pid, t.Port()))
	return nil
}

// reap waits for a tenant's process to exit and clears its tracking
// entry, so a crashed tenant doesn't report as "running" forever.
func (s *Supervisor) reap(tenantID string, cmd *exec.Cmd) {
	err := cmd.Wait()
	s.mu.Lock()
	delete(s.procs, tenantID)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("tenant process exited with error", zap.String("tenant_id", tenantID), zap.Error(err))
	} else {
		s.log.Info("tenant process exited", zap.String("tenant_id", tenantID))
	}
}

// Stop signals a tenant's process group (not just its pid) so any
// grandchildren it spawned die too, then marks it stopped.
func (s *Supervisor) Stop(ctx context.Context, t *entity.Tenant) error {
	s.mu.Lock()
	proc, running := s.procs[t.ID()]
	s.mu.Unlock()

	if running {
		pgid, err := syscall.Getpgid(proc.cmd.Process.Pid)
		if err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		} else {
			_ = proc.cmd.Process.Kill()
		}
	}

	t.MarkStopped()
	if err := s.repo.Save(ctx, t); err != nil {
		return err
	}
	s.appendAudit(ctx, t.ID(), "tenant.stopped", "")
	return nil
}

// IsRunning reports whether the Supervisor currently tracks a live
// process for the given tenant.
func (s *Supervisor) IsRunning(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[tenantID]
	return ok
}

// HealthCheck dials a tenant's assigned port with a short timeout. A
// tenant that doesn't accept connections is considered unhealthy even if
// its OS process hasn't exited yet (hung startup, deadlock).
func (s *Supervisor) HealthCheck(t *entity.Tenant) error {
	addr := fmt.Sprintf("127.0.0.1:%d", t.Port())
	conn, err := net.DialTimeout("tcp", addr, s.cfg.HealthTimeout)
	if err != nil {
		return fmt.Errorf("health check failed for %s: %w", t.Slug(), err)
	}
	return conn.Close()
}

// SweepHealth runs one HealthCheck pass over every tracked tenant,
// flipping any whose process is gone or whose port refuses connections to
// stopped. Intended to be called from a ticker loop by the caller.
func (s *Supervisor) SweepHealth(ctx context.Context, tenants []*entity.Tenant) {
	for _, t := range tenants {
		if t.Status() != entity.TenantStatusRunning {
			continue
		}
		running := s.IsRunning(t.ID())
		healthErr := s.HealthCheck(t)
		if !running || healthErr != nil {
			detail := "process not tracked"
			if healthErr != nil {
				detail = healthErr.Error()
			}
			s.log.Warn("tenant failed health sweep",
				zap.String("tenant", t.Slug()), zap.Bool("process_tracked", running), zap.Error(healthErr))
			t.MarkStopped()
			if err := s.repo.Save(ctx, t); err != nil {
				s.log.Error("failed to persist tenant health state", zap.Error(err))
			}
			s.appendAudit(ctx, t.ID(), "tenant.health_failed", detail)
		}
	}
}

// RestartAll re-spawns every tenant whose last-persisted status is
// running. Called once at platform startup: the Supervisor's in-memory
// process table is always empty on a fresh start, so any tenant left
// "running" in the DataStore is actually dead and must be relaunched
// before it can serve again.
func (s *Supervisor) RestartAll(ctx context.Context) error {
	tenants, err := s.repo.FindAll(ctx)
	if err != nil {
		return domainErrors.Wrap(domainErrors.KindDatabase, err)
	}
	for _, t := range tenants {
		if t.Status() != entity.TenantStatusRunning {
			continue
		}
		s.log.Info("restarting tenant from prior running state", zap.String("tenant", t.Slug()))
		if err := s.Start(ctx, t); err != nil {
			s.log.Error("failed to restart tenant", zap.String("tenant", t.Slug()), zap.Error(err))
			t.MarkError()
			_ = s.repo.Save(ctx, t)
			s.appendAudit(ctx, t.ID(), "tenant.restart_failed", err.Error())
		}
	}
	return nil
}

func mustLogFile(dir, name string) *os.File {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil
	}
	return f
}
