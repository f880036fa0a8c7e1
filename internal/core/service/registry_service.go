package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/api/metrics"
	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// RegistryService is the process-scoped registry of active rooms and known
// users. Rooms are loaded from storage on first join and evicted by the
// janitor once they have been empty past the configured TTL.
type RegistryService struct {
	userRepo ports.UserRepository
	roomRepo ports.RoomRepository
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	roomsByID   map[string]*domain.Room
	roomsByCode map[string]*domain.Room
	users       map[string]*domain.User // email -> user
	observers   []ports.MembershipObserver
}

func NewRegistryService(userRepo ports.UserRepository, roomRepo ports.RoomRepository, logger zerolog.Logger) *RegistryService {
	return &RegistryService{
		userRepo:    userRepo,
		roomRepo:    roomRepo,
		logger:      logger,
		now:         time.Now,
		roomsByID:   make(map[string]*domain.Room),
		roomsByCode: make(map[string]*domain.Room),
		users:       make(map[string]*domain.User),
	}
}

// Subscribe registers an observer for membership-changed notifications.
func (s *RegistryService) Subscribe(obs ports.MembershipObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// JoinByCode adds the caller to the room identified by code, loading the room
// into memory on first join. All storage round trips happen before the
// in-memory mutation so concurrent handlers never observe a half-built room.
func (s *RegistryService) JoinByCode(ctx context.Context, code string, sess domain.Session) (*domain.Room, error) {
	room, loaded := s.roomByCode(code)
	if !loaded {
		stored, err := s.roomRepo.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		overrides, err := s.roomRepo.FindPermissionOverrides(ctx, stored.ID)
		if err != nil {
			return nil, fmt.Errorf("load permission overrides: %w", err)
		}
		room = s.installRoom(stored, overrides)
	}

	rank, err := s.classRank(ctx, sess.UserID, room)
	if err != nil {
		return nil, err
	}

	// A caller holds one membership at a time; joining a new room removes the
	// old entry so stale rosters never keep an empty room alive.
	if prev, ok := s.ActiveRoom(sess.Email); ok && prev.ID != room.ID {
		s.dropMembership(prev, sess.Email)
		s.logger.Info().
			Str("room_id", prev.ID).
			Str("email", sess.Email).
			Msg("member moved out of previous room")
		s.notifyMembershipChanged(prev)
	}

	room.AddMember(&domain.Member{
		UserID:      sess.UserID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		ClassRank:   rank,
		JoinedAt:    s.now(),
	})

	s.mu.Lock()
	if u, ok := s.users[sess.Email]; ok {
		u.ActiveRoom = room.ID
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("room_id", room.ID).
		Str("email", sess.Email).
		Int("class_rank", rank).
		Msg("member joined room")

	s.notifyMembershipChanged(room)
	return room, nil
}

// Leave removes the caller's membership and clears presence-scoped transient
// state. Historical poll responses stay recorded.
func (s *RegistryService) Leave(sess domain.Session) {
	room, ok := s.ActiveRoom(sess.Email)
	if !ok {
		if sess.RoomID == "" {
			return
		}
		room, ok = s.Room(sess.RoomID)
		if !ok {
			return
		}
	}

	empty := s.dropMembership(room, sess.Email)

	s.mu.Lock()
	if u, exists := s.users[sess.Email]; exists {
		u.ActiveRoom = ""
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("room_id", room.ID).
		Str("email", sess.Email).
		Bool("room_empty", empty).
		Msg("member left room")

	s.notifyMembershipChanged(room)
}

// dropMembership removes one membership and deactivates the room when it
// empties. An inactive room rejects activity until someone joins again.
func (s *RegistryService) dropMembership(room *domain.Room, email string) bool {
	empty := room.RemoveMember(email, s.now())
	if empty {
		room.SetActive(false)
	}
	return empty
}

// Room returns a loaded room by ID.
func (s *RegistryService) Room(roomID string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.roomsByID[roomID]
	return room, ok
}

// ActiveRoom returns the room the user is currently a member of.
func (s *RegistryService) ActiveRoom(email string) (*domain.Room, bool) {
	s.mu.RLock()
	u, ok := s.users[email]
	if !ok || u.ActiveRoom == "" {
		s.mu.RUnlock()
		return nil, false
	}
	room, ok := s.roomsByID[u.ActiveRoom]
	s.mu.RUnlock()
	return room, ok
}

// User returns the in-memory user entry, hydrating from persistent storage on
// a cache miss (e.g. first event after reconnect).
func (s *RegistryService) User(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := s.CachedUser(email); ok {
		return u, nil
	}
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.PutUser(u)
	return u, nil
}

// CachedUser returns the in-memory entry without touching storage.
func (s *RegistryService) CachedUser(email string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[email]
	return u, ok
}

// PutUser caches a user in the registry, keyed by email.
func (s *RegistryService) PutUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Email] = user
}

// EvictUser drops a user from the in-memory table (logout/disconnect).
func (s *RegistryService) EvictUser(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, email)
}

// RoomCount returns the number of rooms currently loaded.
func (s *RegistryService) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roomsByID)
}

// StartJanitor evicts rooms that have been empty longer than ttl. It runs
// until ctx is cancelled.
func (s *RegistryService) StartJanitor(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapEmptyRooms(ttl)
			}
		}
	}()
}

func (s *RegistryService) reapEmptyRooms(ttl time.Duration) {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	var reaped []string
	for id, room := range s.roomsByID {
		emptySince := room.EmptySince()
		if room.MemberCount() == 0 && !emptySince.IsZero() && emptySince.Before(cutoff) {
			delete(s.roomsByID, id)
			delete(s.roomsByCode, room.Code)
			reaped = append(reaped, id)
			s.logger.Info().Str("room_id", id).Msg("evicted idle room")
		}
	}
	metrics.ActiveRooms.Set(float64(len(s.roomsByID)))
	s.mu.Unlock()

	if len(reaped) == 0 {
		return
	}
	// Cached override rows die with the room so the next load sees fresh
	// thresholds.
	inv, ok := s.roomRepo.(ports.OverrideInvalidator)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range reaped {
		if err := inv.Invalidate(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("room_id", id).Msg("invalidate override cache")
		}
	}
}

func (s *RegistryService) roomByCode(code string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.roomsByCode[code]
	return room, ok
}

// installRoom inserts a freshly loaded room, or returns the existing one when
// another join raced the load.
func (s *RegistryService) installRoom(stored *domain.StoredRoom, overrides map[string]int) *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.roomsByCode[stored.Code]; ok {
		return existing
	}
	room := domain.NewRoom(stored, overrides, s.now())
	s.roomsByID[room.ID] = room
	s.roomsByCode[room.Code] = room
	metrics.ActiveRooms.Set(float64(len(s.roomsByID)))
	return room
}

// classRank resolves the caller's stored class rank for the room, falling
// back to the room's userDefaults threshold for unenrolled users.
func (s *RegistryService) classRank(ctx context.Context, userID string, room *domain.Room) (int, error) {
	rank, err := s.userRepo.FindClassRank(ctx, userID, room.ID)
	if err == nil {
		return rank, nil
	}
	if err == domain.ErrUserNotFound {
		if def, ok := room.Threshold(domain.CapUserDefaults); ok {
			return def, nil
		}
		return domain.GuestPermissions, nil
	}
	return 0, fmt.Errorf("look up class rank: %w", err)
}

func (s *RegistryService) notifyMembershipChanged(room *domain.Room) {
	s.mu.RLock()
	observers := append([]ports.MembershipObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, obs := range observers {
		obs.MembershipChanged(room)
	}
}
