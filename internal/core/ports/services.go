package ports

import (
	"context"
	"time"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// GateDecision is the outcome of one permission check.
type GateDecision struct {
	Authorized bool
	// Notify carries a denial message for the caller; empty for silent
	// denials (unknown rooms, passive events).
	Notify string
}

// PermissionGate authorizes one inbound real-time event against the layered
// permission tables and the caller's room context.
type PermissionGate interface {
	Authorize(ctx context.Context, sess domain.Session, event string) GateDecision
}

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed    bool
	RetryAfter time.Duration
	// FirstRejection is set on the first rejection of a saturation episode;
	// later rejections in the same window are silent to the log.
	FirstRejection bool
}

// RateLimiter admits or rejects inbound requests per identifier and path.
type RateLimiter interface {
	Check(ctx context.Context, apiKey, sessionEmail, remoteAddr, path string) RateDecision
}

// PollResponseInput is a member's answer as received from the wire.
type PollResponseInput struct {
	OptionIDs []string
	Text      string
	Weight    float64
}

// PollService owns the lifecycle of the one poll a room may hold.
type PollService interface {
	Start(ctx context.Context, sess domain.Session, input domain.PollInput) error
	Respond(ctx context.Context, sess domain.Session, input PollResponseInput) error
	Results(ctx context.Context, roomID string) ([]domain.OptionTally, error)
	Close(ctx context.Context, sess domain.Session) error
	Delete(ctx context.Context, sess domain.Session) error
}

// HelpService manages in-room help tickets.
type HelpService interface {
	Raise(ctx context.Context, sess domain.Session, reason string) error
	DeleteTicket(ctx context.Context, sess domain.Session, userID string) error
}

// AuthService implements registration, login, and API key rotation.
type AuthService interface {
	Register(ctx context.Context, username, password, email, displayName string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	RefreshAPIKey(ctx context.Context, userID, email string) (string, error)
}

// RoomService covers the HTTP-facing room queries.
type RoomService interface {
	Links(ctx context.Context, sess domain.Session, roomID string) ([]domain.Link, error)
}

// Broadcaster delivers outbound events to connected clients.
type Broadcaster interface {
	ToRoom(roomID, event string, payload any)
	ToUser(email, event string, payload any)
}
