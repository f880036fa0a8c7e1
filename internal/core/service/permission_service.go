package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// callerRanks is the pair of ranks a permission check runs against.
type callerRanks struct {
	Global int
	Class  int
}

// permissionResolver is one strategy in the fixed resolution order. Each is a
// pure function of the event, the caller's ranks, and the room's override
// table.
type permissionResolver func(event string, ranks callerRanks, room *domain.Room) bool

// PermissionService gates every inbound real-time event against the layered
// permission tables: global, class-intrinsic, then the room's configurable
// override table, early-exiting on the first table that authorizes.
type PermissionService struct {
	registry  ports.Registry
	userRepo  ports.UserRepository
	logger    zerolog.Logger
	resolvers []permissionResolver
}

func NewPermissionService(registry ports.Registry, userRepo ports.UserRepository, logger zerolog.Logger) *PermissionService {
	return &PermissionService{
		registry: registry,
		userRepo: userRepo,
		logger:   logger,
		resolvers: []permissionResolver{
			resolveGlobal,
			resolveClass,
			resolveConfigurable,
		},
	}
}

// Authorize decides whether the caller may emit the event. Unknown or
// unloaded rooms deny silently (stale or forged room references must not leak
// side effects); a storage failure during hydration is a hard deny with a
// generic server-error message.
func (s *PermissionService) Authorize(ctx context.Context, sess domain.Session, event string) ports.GateDecision {
	var room *domain.Room
	if sess.RoomID != "" {
		loaded, ok := s.registry.Room(sess.RoomID)
		if !ok {
			s.logger.Info().
				Str("event", event).
				Str("room_id", sess.RoomID).
				Msg("permission check: room not loaded")
			return ports.GateDecision{}
		}
		room = loaded
	}

	// Configurable events need the override table, which only exists once the
	// room is in memory.
	if _, configurable := domain.ClassPermissionMapper[event]; configurable && room == nil {
		return ports.GateDecision{}
	}

	ranks, err := s.resolveRanks(ctx, sess, room)
	if err != nil {
		n := domain.NextErrorNumber()
		s.logger.Error().Err(err).
			Int64("error_number", n).
			Str("event", event).
			Str("email", sess.Email).
			Msg("permission check: hydration failed")
		return ports.GateDecision{
			Notify: fmt.Sprintf("Error Number %d: There was a server error try again.", n),
		}
	}

	for _, resolve := range s.resolvers {
		if resolve(event, ranks, room) {
			return ports.GateDecision{Authorized: true}
		}
	}

	if domain.IsPassive(event) {
		return ports.GateDecision{}
	}
	return ports.GateDecision{
		Notify: fmt.Sprintf("You do not have permission to use %s.", domain.EventDisplayName(event)),
	}
}

// resolveRanks gathers the caller's global and class ranks, preferring the
// room's membership snapshot and hydrating from storage when the user is not
// in memory.
func (s *PermissionService) resolveRanks(ctx context.Context, sess domain.Session, room *domain.Room) (callerRanks, error) {
	user, err := s.registry.User(ctx, sess.Email)
	if err != nil {
		// Unknown callers are guests, not an infra fault: guest global rank and
		// no class standing, so they get a clean denial downstream.
		if errors.Is(err, domain.ErrUserNotFound) {
			return callerRanks{Global: domain.GuestPermissions}, nil
		}
		return callerRanks{}, fmt.Errorf("hydrate user %s: %w", sess.Email, err)
	}

	ranks := callerRanks{Global: user.Permissions}
	if room == nil {
		return ranks, nil
	}

	if member, ok := room.Member(sess.Email); ok {
		ranks.Class = member.ClassRank
		return ranks, nil
	}

	classRank, err := s.userRepo.FindClassRank(ctx, user.ID, room.ID)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return ranks, nil
		}
		return callerRanks{}, fmt.Errorf("hydrate class rank for %s: %w", sess.Email, err)
	}
	ranks.Class = classRank
	return ranks, nil
}

func resolveGlobal(event string, ranks callerRanks, _ *domain.Room) bool {
	threshold, ok := domain.GlobalEventPermissions[event]
	return ok && ranks.Global >= threshold
}

func resolveClass(event string, ranks callerRanks, _ *domain.Room) bool {
	threshold, ok := domain.ClassEventPermissions[event]
	return ok && ranks.Class >= threshold
}

func resolveConfigurable(event string, ranks callerRanks, room *domain.Room) bool {
	capability, ok := domain.ClassPermissionMapper[event]
	if !ok || room == nil {
		return false
	}
	threshold, ok := room.Threshold(capability)
	return ok && ranks.Class >= threshold
}
