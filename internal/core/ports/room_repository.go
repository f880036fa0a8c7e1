package ports

import (
	"context"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// RoomRepository is the persistent-storage contract for classroom records.
type RoomRepository interface {
	// FindByCode resolves a join code. domain.ErrRoomNotFound when no room
	// carries that code.
	FindByCode(ctx context.Context, code string) (*domain.StoredRoom, error)
	// FindPermissionOverrides returns the stored per-room override row as a
	// capability -> rank map. An empty map (no row) is not an error.
	FindPermissionOverrides(ctx context.Context, roomID string) (map[string]int, error)
	ListLinks(ctx context.Context, roomID string) ([]domain.Link, error)
}

// OverrideInvalidator is implemented by caching repository decorators that can
// drop a stale permission-override row. The registry invalidates a room's row
// when it evicts the room.
type OverrideInvalidator interface {
	Invalidate(ctx context.Context, roomID string) error
}
