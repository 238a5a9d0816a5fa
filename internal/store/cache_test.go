// internal/store/cache_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSnapshotCache(client, 5*time.Minute, logger.NewTestLogger(t)), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	trialEnd := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	w := &models.Workspace{
		ID:          "ws_1",
		Status:      models.StatusTrial,
		Plan:        models.PlanStarter,
		TrialEndsAt: &trialEnd,
	}
	require.NoError(t, cache.PutSnapshot(ctx, w))

	snap, err := cache.GetSnapshot(ctx, "ws_1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.StatusTrial, snap.Status)
	assert.Equal(t, models.PlanStarter, snap.Plan)
	require.NotNil(t, snap.TrialEndsAt)
	assert.True(t, trialEnd.Equal(*snap.TrialEndsAt))
}

func TestSnapshotMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	snap, err := cache.GetSnapshot(context.Background(), "ws_missing")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestInvalidateDropsSnapshot(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	w := &models.Workspace{ID: "ws_1", Status: models.StatusActive, Plan: models.PlanPro}
	require.NoError(t, cache.PutSnapshot(ctx, w))

	cache.Invalidate(ctx, "ws_1")

	snap, err := cache.GetSnapshot(ctx, "ws_1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCorruptSnapshotTreatedAsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("ws:ws_1", "{not json"))

	snap, err := cache.GetSnapshot(ctx, "ws_1")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.False(t, mr.Exists("ws:ws_1"))
}

func TestSeenEventMarkers(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	assert.False(t, cache.SeenEvent(ctx, "ws_1", "evt_1"))

	cache.MarkEventSeen(ctx, "ws_1", "evt_1")
	assert.True(t, cache.SeenEvent(ctx, "ws_1", "evt_1"))
	assert.False(t, cache.SeenEvent(ctx, "ws_2", "evt_1"))

	mr.FastForward(6 * time.Minute)
	assert.False(t, cache.SeenEvent(ctx, "ws_1", "evt_1"))
}
