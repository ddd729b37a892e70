// Package datastore defines the capability-set interface the orchestrator,
// scheduler and tenant supervisor all depend on. Two infrastructure
// implementations back it: an embedded single-connection SQLite store for
// a single tenant process, and a networked Postgres store with a bounded
// pool for the platform's central control plane.
package datastore

import (
	"context"

	"github.com/bizclaw/bizclaw/internal/domain/repository"
)

// Store aggregates every repository a fully wired BizClaw process needs,
// plus lifecycle and migration concerns that don't belong to any single
// repository. Both the embedded per-tenant process and the networked admin
// control plane satisfy this interface identically — callers never branch
// on which backend is live. Accessor methods (rather than embedding the
// repository interfaces directly) sidestep the method-name collisions that
// would otherwise arise from every repository exposing FindByID/Save/Delete.
type Store interface {
	Agents() repository.AgentRepository
	Messages() repository.MessageRepository
	Tenants() repository.TenantRepository
	Users() repository.UserRepository
	AgentLinks() repository.AgentLinkRepository
	Delegations() repository.DelegationRepository
	Handoffs() repository.HandoffRepository
	Teams() repository.TeamRepository
	LlmTraces() repository.LlmTraceRepository
	Audit() repository.AuditRepository

	// Migrate applies the store's schema. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	// Close releases underlying connections.
	Close() error

	// Ping verifies the store is reachable, used by the Supervisor's
	// health-probe sweep.
	Ping(ctx context.Context) error
}
