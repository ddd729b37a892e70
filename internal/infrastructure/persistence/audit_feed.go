package persistence

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/bizclaw/bizclaw/internal/infrastructure/eventbus"
)

// publishingAuditRepository decorates an AuditRepository so every appended
// event also lands on the event bus for live subscribers (the admin
// dashboard's websocket feed). The durable write always happens first; a
// full bus never loses the row.
type publishingAuditRepository struct {
	inner repository.AuditRepository
	bus   eventbus.Bus
}

// NewPublishingAuditRepository wraps inner so appends are mirrored onto bus.
func NewPublishingAuditRepository(inner repository.AuditRepository, bus eventbus.Bus) repository.AuditRepository {
	return &publishingAuditRepository{inner: inner, bus: bus}
}

func (r *publishingAuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	if err := r.inner.Append(ctx, event); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeAuditEvent, map[string]interface{}{
			"actor":     event.ActorID,
			"action":    event.Action,
			"tenant_id": event.TenantID,
			"detail":    event.Detail,
		}))
	}
	return nil
}

func (r *publishingAuditRepository) ListRecent(ctx context.Context, limit int) ([]*entity.AuditEvent, error) {
	return r.inner.ListRecent(ctx, limit)
}

func (r *publishingAuditRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*entity.AuditEvent, error) {
	return r.inner.ListByTenant(ctx, tenantID, limit)
}
