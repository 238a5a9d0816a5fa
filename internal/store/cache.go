// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

// Snapshot is the cached view of a workspace's billing state served to the
// access guard on the hot path. It carries only what enforcement needs.
type Snapshot struct {
	WorkspaceID string                 `json:"workspaceId"`
	Status      models.WorkspaceStatus `json:"status"`
	Plan        models.WorkspacePlan   `json:"plan"`
	TrialEndsAt *time.Time             `json:"trialEndsAt,omitempty"`
	CachedAt    time.Time              `json:"cachedAt"`
}

// SnapshotCache keeps workspace billing snapshots and seen-event markers in
// Redis. It is a read-through cache: Postgres stays authoritative, and every
// reconciliation invalidates the affected workspace.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration, log logger.Logger) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl, log: log}
}

func snapshotKey(workspaceID string) string {
	return "ws:" + workspaceID
}

func eventKey(workspaceID, eventID string) string {
	return fmt.Sprintf("evt:%s:%s", workspaceID, eventID)
}

// GetSnapshot returns the cached snapshot, or nil on a miss. Cache errors
// are logged and treated as misses.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, workspaceID string) (*Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey(workspaceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.log.WithError(err).Warn("snapshot cache read failed", map[string]interface{}{
			"workspace_id": workspaceID,
		})
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.log.WithError(err).Warn("snapshot cache entry corrupt, dropping", map[string]interface{}{
			"workspace_id": workspaceID,
		})
		c.client.Del(ctx, snapshotKey(workspaceID))
		return nil, nil
	}
	return &snap, nil
}

// PutSnapshot caches the workspace's current billing state.
func (c *SnapshotCache) PutSnapshot(ctx context.Context, w *models.Workspace) error {
	snap := Snapshot{
		WorkspaceID: w.ID,
		Status:      w.Status,
		Plan:        w.Plan,
		TrialEndsAt: w.TrialEndsAt,
		CachedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(w.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached snapshot after a reconciliation commits.
func (c *SnapshotCache) Invalidate(ctx context.Context, workspaceID string) {
	if err := c.client.Del(ctx, snapshotKey(workspaceID)).Err(); err != nil {
		c.log.WithError(err).Warn("snapshot cache invalidation failed", map[string]interface{}{
			"workspace_id": workspaceID,
		})
	}
}

// SeenEvent reports whether the event was already marked as applied. This is
// a fast-path filter only: the datastore idempotency check remains the
// guarantee, so errors are treated as unseen.
func (c *SnapshotCache) SeenEvent(ctx context.Context, workspaceID, eventID string) bool {
	n, err := c.client.Exists(ctx, eventKey(workspaceID, eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkEventSeen records a processed event so duplicate deliveries can skip
// the transaction entirely. Markers expire with the snapshot TTL.
func (c *SnapshotCache) MarkEventSeen(ctx context.Context, workspaceID, eventID string) {
	if err := c.client.Set(ctx, eventKey(workspaceID, eventID), "1", c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("seen-event marker write failed", map[string]interface{}{
			"workspace_id": workspaceID,
			"event_id":     eventID,
		})
	}
}
