package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
	"github.com/bizclaw/bizclaw/internal/domain/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// traceIDKey is the private context key for trace IDs.
type traceIDKey struct{}

// WithTraceID injects a trace ID into the context.
// If traceID is empty, a random one is generated.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext extracts the trace ID from the context.
// Returns empty string if no trace ID is set.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// generateTraceID creates a random 16-character hex trace ID.
func generateTraceID() string {
	b := make([]byte, 8) // 8 bytes = 16 hex chars
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// TraceRecorder persists one entity.LlmTrace row per completed provider
// call. AgentLoop calls it (when wired) right after each response lands, so
// the Admin API's /api/v1/traces and /api/v1/traces/cost endpoints see live
// call volume instead of only their own repository-level tests.
type TraceRecorder struct {
	traces repository.LlmTraceRepository
	logger *zap.Logger
}

// NewTraceRecorder builds a recorder backed by the given trace repository.
// A nil repository is allowed — Record then becomes a no-op, which is what
// single-tenant CLI mode (no DataStore behind it) gets.
func NewTraceRecorder(traces repository.LlmTraceRepository, logger *zap.Logger) *TraceRecorder {
	return &TraceRecorder{traces: traces, logger: logger}
}

// Record saves one LlmTrace row for a completed call. Failures are logged,
// never propagated — a broken trace write must never fail the turn it's
// observing.
func (r *TraceRecorder) Record(ctx context.Context, agent, model string, tokensUsed int, latency time.Duration, errMsg string) {
	if r == nil || r.traces == nil {
		return
	}
	status := "ok"
	if errMsg != "" {
		status = "error"
	}
	trace := &entity.LlmTrace{
		ID:          uuid.NewString(),
		Agent:       agent,
		Model:       model,
		TotalTokens: tokensUsed,
		LatencyMS:   latency.Milliseconds(),
		Status:      status,
		Error:       errMsg,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.traces.Save(ctx, trace); err != nil {
		r.logger.Warn("failed to persist LLM trace", zap.String("trace_id", trace.ID), zap.Error(err))
	}
}
