package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// HelpService manages in-room help tickets. A ticket is presence-scoped
// transient state: it is cleared when the member leaves.
type HelpService struct {
	registry    ports.Registry
	broadcaster ports.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func NewHelpService(registry ports.Registry, broadcaster ports.Broadcaster, logger zerolog.Logger) *HelpService {
	return &HelpService{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// Raise records a help ticket for the caller. Rejected while the room is
// inactive.
func (s *HelpService) Raise(ctx context.Context, sess domain.Session, reason string) error {
	room, ok := s.registry.ActiveRoom(sess.Email)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.SetHelp(sess.Email, reason, s.now()); err != nil {
		return err
	}
	s.logger.Info().Str("room_id", room.ID).Str("email", sess.Email).Msg("help ticket raised")
	s.broadcaster.ToRoom(room.ID, domain.EventClassUpdate, room.Members())
	return nil
}

// DeleteTicket clears the help ticket of the member with the given user ID.
func (s *HelpService) DeleteTicket(ctx context.Context, sess domain.Session, userID string) error {
	room, ok := s.registry.ActiveRoom(sess.Email)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.ClearHelpByID(userID); err != nil {
		return err
	}
	s.logger.Info().Str("room_id", room.ID).Str("user_id", userID).Msg("help ticket cleared")
	s.broadcaster.ToRoom(room.ID, domain.EventClassUpdate, room.Members())
	return nil
}
