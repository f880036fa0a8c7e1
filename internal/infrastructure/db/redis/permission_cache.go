package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

const permissionTTL = time.Hour

// PermissionCache decorates a RoomRepository with a read-through Redis cache
// for the stored permission-override rows, which are read on every room load
// but change rarely. Cache failures fall through to the underlying store.
type PermissionCache struct {
	next   ports.RoomRepository
	client *redis.Client
}

// NewPermissionCache wraps next with the cache.
func NewPermissionCache(next ports.RoomRepository, client *redis.Client) *PermissionCache {
	return &PermissionCache{next: next, client: client}
}

func (c *PermissionCache) FindByCode(ctx context.Context, code string) (*domain.StoredRoom, error) {
	return c.next.FindByCode(ctx, code)
}

func (c *PermissionCache) ListLinks(ctx context.Context, roomID string) ([]domain.Link, error) {
	return c.next.ListLinks(ctx, roomID)
}

func (c *PermissionCache) FindPermissionOverrides(ctx context.Context, roomID string) (map[string]int, error) {
	key := c.key(roomID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var thresholds map[string]int
		if err := json.Unmarshal(raw, &thresholds); err == nil {
			return thresholds, nil
		}
	}

	thresholds, err := c.next.FindPermissionOverrides(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(thresholds); err == nil {
		_ = c.client.Set(ctx, key, raw, permissionTTL).Err()
	}
	return thresholds, nil
}

// Invalidate drops the cached row for a room. The registry calls this when it
// evicts an idle room so a later load refetches the stored thresholds.
func (c *PermissionCache) Invalidate(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, c.key(roomID)).Err()
}

var (
	_ ports.RoomRepository      = (*PermissionCache)(nil)
	_ ports.OverrideInvalidator = (*PermissionCache)(nil)
)

func (c *PermissionCache) key(roomID string) string {
	return fmt.Sprintf("perm:%s", roomID)
}
