package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bizclaw/bizclaw/internal/domain/datastore"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/infrastructure/persistence/models"
)

// EmbeddedStore backs a single tenant process with a local SQLite file.
// WAL mode and a single open connection are the idiomatic way to get
// concurrent-safe access out of SQLite from a Go process without a
// separate writer goroutine: GORM's sql.DB pool is pinned to one
// connection so every query serializes through the one SQLite handle.
type EmbeddedStore struct {
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

// NewEmbeddedStore opens (or creates) the SQLite file at dsn in WAL mode.
func NewEmbeddedStore(dsn string) (*EmbeddedStore, error) {
	dialector := sqlite.Open(dsn + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return &EmbeddedStore{
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

func (s *EmbeddedStore) Agents() repository.AgentRepository           { return s.agents }
func (s *EmbeddedStore) Messages() repository.MessageRepository       { return s.messages }
func (s *EmbeddedStore) Tenants() repository.TenantRepository         { return s.tenants }
func (s *EmbeddedStore) Users() repository.UserRepository             { return s.users }
func (s *EmbeddedStore) AgentLinks() repository.AgentLinkRepository   { return s.agentLinks }
func (s *EmbeddedStore) Delegations() repository.DelegationRepository { return s.delegations }
func (s *EmbeddedStore) Handoffs() repository.HandoffRepository       { return s.handoffs }
func (s *EmbeddedStore) Teams() repository.TeamRepository             { return s.teams }
func (s *EmbeddedStore) LlmTraces() repository.LlmTraceRepository     { return s.traces }
func (s *EmbeddedStore) Audit() repository.AuditRepository            { return s.audit }

func (s *EmbeddedStore) Migrate(ctx context.Context) error {
	return autoMigrateAll(s.db)
}

func (s *EmbeddedStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *EmbeddedStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ datastore.Store = (*EmbeddedStore)(nil)

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AgentModel{},
		&models.MessageModel{},
		&models.TenantModel{},
		&models.UserModel{},
		&models.AgentLinkModel{},
		&models.DelegationModel{},
		&models.HandoffModel{},
		&models.TeamModel{},
		&models.TeamMemberModel{},
		&models.TeamTaskModel{},
		&models.TeamMessageModel{},
		&models.LlmTraceModel{},
		&models.AuditEventModel{},
	)
}
