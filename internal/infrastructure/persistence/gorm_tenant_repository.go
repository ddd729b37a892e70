package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/infrastructure/persistence/models"
	domainErrors "github.com/bizclaw/bizclaw/pkg/errors"
	"gorm.io/gorm"
)

// GormTenantRepository is the GORM-backed TenantRepository.
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository builds a TenantRepository over db.
func NewGormTenantRepository(db *gorm.DB) repository.TenantRepository {
	return &GormTenantRepository{db: db}
}

func (r *GormTenantRepository) FindByID(ctx context.Context, id string) (*entity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "tenant not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find tenant", err)
	}
	return toTenantEntity(&model), nil
}

func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*entity.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "tenant not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find tenant", err)
	}
	return toTenantEntity(&model), nil
}

func (r *GormTenantRepository) FindAll(ctx context.Context) ([]*entity.Tenant, error) {
	var modelList []models.TenantModel
	if err := r.db.WithContext(ctx).Find(&modelList).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find tenants", err)
	}
	tenants := make([]*entity.Tenant, 0, len(modelList))
	for _, m := range modelList {
		tenants = append(tenants, toTenantEntity(&m))
	}
	return tenants, nil
}

func (r *GormTenantRepository) Save(ctx context.Context, tenant *entity.Tenant) error {
	model := toTenantModel(tenant)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save tenant", err)
	}
	return nil
}

func (r *GormTenantRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.TenantModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to delete tenant", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.New(domainErrors.KindNotFound, "tenant not found", nil)
	}
	return nil
}

func toTenantModel(t *entity.Tenant) *models.TenantModel {
	limits := t.Limits()
	m := &models.TenantModel{
		ID:               t.ID(),
		Name:             t.Name(),
		Slug:             t.Slug(),
		Status:           string(t.Status()),
		Port:             t.Port(),
		Plan:             t.Plan(),
		Provider:         t.Provider(),
		Model:            t.Model(),
		LimitMessagesDay: limits.MessagesDay,
		LimitChannels:    limits.Channels,
		LimitMembers:     limits.Members,
		PID:              t.PID(),
		OwnerID:          t.OwnerID(),
		PairingCode:      t.PairingCode(),
		CreatedAt:        t.CreatedAt(),
		UpdatedAt:        time.Now().UTC(),
	}
	if res := t.Resource(); !res.SampledAt.IsZero() {
		m.CPUPercent = res.CPUPercent
		m.MemBytes = res.MemBytes
		m.DiskBytes = res.DiskBytes
		sampledAt := res.SampledAt
		m.ResourceSampledAt = &sampledAt
	}
	return m
}

func toTenantEntity(m *models.TenantModel) *entity.Tenant {
	limits := entity.TenantLimits{
		MessagesDay: m.LimitMessagesDay,
		Channels:    m.LimitChannels,
		Members:     m.LimitMembers,
	}
	var resource entity.ResourceSample
	if m.ResourceSampledAt != nil {
		resource = entity.ResourceSample{
			CPUPercent: m.CPUPercent,
			MemBytes:   m.MemBytes,
			DiskBytes:  m.DiskBytes,
			SampledAt:  *m.ResourceSampledAt,
		}
	}
	return entity.ReconstructTenant(
		m.ID, m.Name, m.Slug, entity.TenantStatus(m.Status), m.Port,
		m.Plan, m.Provider, m.Model, limits, m.PairingCode, m.PID, resource,
		m.OwnerID, m.CreatedAt,
	)
}

// GormUserRepository is the GORM-backed UserRepository.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository builds a UserRepository over db.
func NewGormUserRepository(db *gorm.DB) repository.UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "user not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find user", err)
	}
	return toUserEntity(&model), nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.New(domainErrors.KindNotFound, "user not found", err)
		}
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find user", err)
	}
	return toUserEntity(&model), nil
}

func (r *GormUserRepository) FindAll(ctx context.Context) ([]*entity.User, error) {
	var modelList []models.UserModel
	if err := r.db.WithContext(ctx).Find(&modelList).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to find users", err)
	}
	users := make([]*entity.User, 0, len(modelList))
	for _, m := range modelList {
		users = append(users, toUserEntity(&m))
	}
	return users, nil
}

func (r *GormUserRepository) Save(ctx context.Context, user *entity.User) error {
	model := toUserModel(user)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to save user", err)
	}
	return nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.UserModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to delete user", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainErrors.New(domainErrors.KindNotFound, "user not found", nil)
	}
	return nil
}

func toUserModel(u *entity.User) *models.UserModel {
	m := &models.UserModel{
		ID:           u.ID(),
		Email:        u.Email(),
		PasswordHash: u.PasswordHash(),
		Role:         string(u.Role()),
		TenantID:     u.TenantID(),
		Status:       u.Status(),
		UpdatedAt:    time.Now().UTC(),
	}
	if lastLogin := u.LastLogin(); lastLogin != nil {
		m.LastLoginAt = lastLogin
	}
	return m
}

func toUserEntity(m *models.UserModel) *entity.User {
	return entity.ReconstructUser(
		m.ID, m.Email, m.PasswordHash, entity.UserRole(m.Role),
		m.TenantID, m.Status, m.LastLoginAt,
	)
}

// GormAuditRepository is the GORM-backed AuditRepository.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository builds an AuditRepository over db.
func NewGormAuditRepository(db *gorm.DB) repository.AuditRepository {
	return &GormAuditRepository{db: db}
}

func (r *GormAuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	m := &models.AuditEventModel{
		ID:        event.ID,
		TenantID:  event.TenantID,
		ActorID:   event.ActorID,
		Action:    event.Action,
		Detail:    event.Detail,
		CreatedAt: event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return domainErrors.New(domainErrors.KindDatabase, "failed to append audit event", err)
	}
	return nil
}

func (r *GormAuditRepository) ListRecent(ctx context.Context, limit int) ([]*entity.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.AuditEventModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to list audit events", err)
	}
	return toAuditEntities(list), nil
}

func (r *GormAuditRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*entity.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.AuditEventModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, domainErrors.New(domainErrors.KindDatabase, "failed to list tenant audit events", err)
	}
	return toAuditEntities(list), nil
}

func toAuditEntities(list []models.AuditEventModel) []*entity.AuditEvent {
	out := make([]*entity.AuditEvent, 0, len(list))
	for _, m := range list {
		out = append(out, entity.ReconstructAuditEvent(m.ID, m.TenantID, m.ActorID, m.Action, m.Detail, m.CreatedAt))
	}
	return out
}
