package ports

import (
	"context"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// UserRepository is the persistent-storage contract for user identity. Every
// call returns a definite success or failure; there is no shared transaction
// with in-memory state.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// FindClassRank returns the user's stored class-scoped rank for a room.
	// domain.ErrUserNotFound when the user is not enrolled.
	FindClassRank(ctx context.Context, userID, roomID string) (int, error)
	UpdateAPIKey(ctx context.Context, userID, apiKey string) error
}
