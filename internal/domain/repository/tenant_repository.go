package repository

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
)

// TenantRepository persists Tenant aggregates for the Admin API and the
// Tenant Supervisor.
type TenantRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Tenant, error)
	FindAll(ctx context.Context) ([]*entity.Tenant, error)
	Save(ctx context.Context, tenant *entity.Tenant) error
	Delete(ctx context.Context, id string) error
}

// UserRepository persists User aggregates for admin authentication.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindAll(ctx context.Context) ([]*entity.User, error)
	Save(ctx context.Context, user *entity.User) error
	Delete(ctx context.Context, id string) error
}
