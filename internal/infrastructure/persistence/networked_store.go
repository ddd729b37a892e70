package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bizclaw/bizclaw/internal/domain/datastore"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
)

// NetworkedStore backs the platform's central control plane (Admin API,
// Tenant Supervisor) with Postgres over a bounded connection pool — the
// control plane serves many concurrent admin requests and tenant health
// probes, so unlike EmbeddedStore it keeps the driver's normal pooling
// instead of pinning to a single connection.
type NetworkedStore struct {
	db *gorm.DB

	agents      repository.AgentRepository
	messages    repository.MessageRepository
	tenants     repository.TenantRepository
	users       repository.UserRepository
	agentLinks  repository.AgentLinkRepository
	delegations repository.DelegationRepository
	handoffs    repository.HandoffRepository
	teams       repository.TeamRepository
	traces      repository.LlmTraceRepository
	audit       repository.AuditRepository
}

// NetworkedStoreConfig bounds the connection pool. Zero values fall back to
// conservative defaults suitable for a single control-plane instance.
type NetworkedStoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewNetworkedStore opens a Postgres connection pool per cfg.
func NewNetworkedStore(cfg NetworkedStoreConfig) (*NetworkedStore, error) {
	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open networked store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	return &NetworkedStore{
		db:          db,
		agents:      NewGormAgentRepository(db),
		messages:    NewGormMessageRepository(db),
		tenants:     NewGormTenantRepository(db),
		users:       NewGormUserRepository(db),
		agentLinks:  NewGormAgentLinkRepository(db),
		delegations: NewGormDelegationRepository(db),
		handoffs:    NewGormHandoffRepository(db),
		teams:       NewGormTeamRepository(db),
		traces:      NewGormLlmTraceRepository(db),
		audit:       NewGormAuditRepository(db),
	}, nil
}

func (s *NetworkedStore) Agents() repository.AgentRepository           { return s.agents }
func (s *NetworkedStore) Messages() repository.MessageRepository       { return s.messages }
func (s *NetworkedStore) Tenants() repository.TenantRepository         { return s.tenants }
func (s *NetworkedStore) Users() repository.UserRepository             { return s.users }
func (s *NetworkedStore) AgentLinks() repository.AgentLinkRepository   { return s.agentLinks }
func (s *NetworkedStore) Delegations() repository.DelegationRepository { return s.delegations }
func (s *NetworkedStore) Handoffs() repository.HandoffRepository       { return s.handoffs }
func (s *NetworkedStore) Teams() repository.TeamRepository             { return s.teams }
func (s *NetworkedStore) LlmTraces() repository.LlmTraceRepository     { return s.traces }
func (s *NetworkedStore) Audit() repository.AuditRepository            { return s.audit }

func (s *NetworkedStore) Migrate(ctx context.Context) error {
	return autoMigrateAll(s.db)
}

func (s *NetworkedStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *NetworkedStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ datastore.Store = (*NetworkedStore)(nil)
