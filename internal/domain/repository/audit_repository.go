package repository

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
)

// AuditRepository persists the Admin API's append-only audit trail.
type AuditRepository interface {
	Append(ctx context.Context, event *entity.AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]*entity.AuditEvent, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*entity.AuditEvent, error)
}
