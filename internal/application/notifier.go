package application

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/scheduler"
	"github.com/bizclaw/bizclaw/internal/infrastructure/eventbus"
	"go.uber.org/zap"
)

// busNotifier delivers scheduler notifications to the application log and,
// when an event bus is attached, publishes them for live subscribers (the
// dashboard websocket feed). The log write never depends on the bus: a
// scheduled task firing is an operational event this process surfaces
// through structured logs regardless of who is listening.
type busNotifier struct {
	log *zap.Logger
	bus eventbus.Bus
}

func (n *busNotifier) Notify(ctx context.Context, note scheduler.Notification) error {
	fields := []zap.Field{
		zap.String("title", note.Title),
		zap.String("source", note.Source),
		zap.String("priority", string(note.Priority)),
	}
	if note.Priority == scheduler.NotifyUrgent {
		n.log.Warn("scheduler notification: "+note.Body, fields...)
	} else {
		n.log.Info("scheduler notification: "+note.Body, fields...)
	}

	if n.bus != nil {
		n.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventTypeSchedulerNotification, map[string]interface{}{
			"title":    note.Title,
			"body":     note.Body,
			"source":   note.Source,
			"priority": string(note.Priority),
		}))
	}
	return nil
}
