package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizclaw/bizclaw/internal/domain/entity"
)

func newTestStore(t *testing.T) *EmbeddedStore {
	t.Helper()
	store, err := NewEmbeddedStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEmbeddedStore_PingAndClose(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestEmbeddedStore_HandoffCreateActiveIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	handoffs := store.Handoffs()

	first := entity.NewHandoff("h1", "router", "billing", "session-1", "routing", "")
	require.NoError(t, handoffs.CreateActive(ctx, first))

	active, err := handoffs.FindActiveBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", active.ID)

	second := entity.NewHandoff("h2", "billing", "support", "session-1", "escalation", "")
	require.NoError(t, handoffs.CreateActive(ctx, second))

	active, err = handoffs.FindActiveBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "h2", active.ID, "creating a new active handoff must deactivate the prior one")
}

func TestEmbeddedStore_ClaimTaskConcurrentRaceHasOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	teams := store.Teams()

	team := &entity.AgentTeam{ID: "team-1", Name: "ops"}
	require.NoError(t, teams.Save(ctx, team))

	task := &entity.TeamTask{
		ID: "task-1", TeamID: "team-1", Title: "drain queue",
		Status: entity.TeamTaskPending, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, teams.SaveTask(ctx, task))

	const contenders = 8
	var wg sync.WaitGroup
	claimed := make([]bool, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := teams.ClaimTask(ctx, "task-1", "agent-"+string(rune('a'+i)))
			assert.NoError(t, err)
			claimed[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range claimed {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent claimant should win the compare-and-set")

	stored, err := teams.FindTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, entity.TeamTaskInProgress, stored.Status)
	assert.NotEmpty(t, stored.AssignedTo)
}

func TestEmbeddedStore_AgentLinkRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	links := store.AgentLinks()

	link := &entity.AgentLink{
		ID: "link-1", Source: "router", Target: "billing",
		Direction: entity.LinkOutbound, MaxConcurrent: 2,
		Settings: map[string]interface{}{"note": "seeded"}, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, links.Save(ctx, link))

	found, err := links.FindBetween(ctx, "router", "billing")
	require.NoError(t, err)
	assert.True(t, found.Allows("router", "billing"))
	assert.False(t, found.Allows("billing", "router"))
	assert.Equal(t, "seeded", found.Settings["note"])
}

func TestEmbeddedStore_DelegationStatusPersistsAcrossSave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	delegations := store.Delegations()

	d := entity.NewDelegation("d1", "session-1", "router", "billing", "refund lookup", entity.DelegationAsync)
	require.NoError(t, delegations.Save(ctx, d))

	count, err := delegations.ActiveDelegationCount(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, d.Advance(entity.DelegationRunning))
	require.NoError(t, d.Complete("refund found"))
	require.NoError(t, delegations.Save(ctx, d))

	reloaded, err := delegations.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, entity.DelegationCompleted, reloaded.Status())
	assert.Equal(t, "refund found", reloaded.Result())
	require.NotNil(t, reloaded.CompletedAt())

	count, err = delegations.ActiveDelegationCount(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "a completed delegation no longer counts as active")
}
