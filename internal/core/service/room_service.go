package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// RoomService backs the HTTP-facing room queries.
type RoomService struct {
	registry ports.Registry
	roomRepo ports.RoomRepository
	logger   zerolog.Logger
}

func NewRoomService(registry ports.Registry, roomRepo ports.RoomRepository, logger zerolog.Logger) *RoomService {
	return &RoomService{registry: registry, roomRepo: roomRepo, logger: logger}
}

// Links returns the room's link list. Only current members may read it; a
// room that is not live counts as not being a member of it.
func (s *RoomService) Links(ctx context.Context, sess domain.Session, roomID string) ([]domain.Link, error) {
	room, ok := s.registry.Room(roomID)
	if !ok || !room.HasMemberID(sess.UserID) {
		return nil, domain.ErrForbidden
	}

	links, err := s.roomRepo.ListLinks(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}
