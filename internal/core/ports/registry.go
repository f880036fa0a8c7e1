package ports

import (
	"context"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// Registry is the authoritative in-memory map of active rooms and connected
// members. It is the source of truth for "is this user in this room with what
// role".
type Registry interface {
	// JoinByCode resolves a join code, loading the room from storage on first
	// join, and adds or refreshes the caller's membership.
	// domain.ErrRoomNotFound when the code is unknown.
	JoinByCode(ctx context.Context, code string, sess domain.Session) (*domain.Room, error)
	// Leave removes the caller's membership and clears presence-scoped
	// transient state. Unknown sessions are a no-op.
	Leave(sess domain.Session)

	Room(roomID string) (*domain.Room, bool)
	// User returns the in-memory user entry, hydrating from storage on miss.
	User(ctx context.Context, email string) (*domain.User, error)
	// CachedUser returns the in-memory user entry without touching storage.
	CachedUser(email string) (*domain.User, bool)
	PutUser(user *domain.User)
	EvictUser(email string)
	// ActiveRoom returns the room the user is currently in, if any.
	ActiveRoom(email string) (*domain.Room, bool)
}

// MembershipObserver is notified after membership changes, e.g. to refresh a
// management dashboard.
type MembershipObserver interface {
	MembershipChanged(room *domain.Room)
}
