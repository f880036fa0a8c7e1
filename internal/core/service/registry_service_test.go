package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// ---------------------------------------------------------------------------
// In-memory stub repositories, shared by the service tests in this package
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	byEmail    map[string]*domain.User
	byAPIKey   map[string]*domain.User
	classRanks map[string]int // userID + "/" + roomID -> rank
	findErr    error          // if set, lookups return this error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byEmail:    make(map[string]*domain.User),
		byAPIKey:   make(map[string]*domain.User),
		classRanks: make(map[string]int),
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) put(u *domain.User) {
	r.byEmail[u.Email] = u
	if u.APIKey != "" {
		r.byAPIKey[u.APIKey] = u
	}
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) FindByAPIKey(_ context.Context, apiKey string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.byAPIKey[apiKey]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, exists := r.byEmail[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	clone := cloneUser(user)
	if clone.ID == "" {
		clone.ID = "id-" + user.Email
	}
	r.put(clone)
	return cloneUser(clone), nil
}

func (r *stubUserRepo) FindClassRank(_ context.Context, userID, roomID string) (int, error) {
	if r.findErr != nil {
		return 0, r.findErr
	}
	rank, ok := r.classRanks[userID+"/"+roomID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return rank, nil
}

func (r *stubUserRepo) UpdateAPIKey(_ context.Context, userID, apiKey string) error {
	for _, u := range r.byEmail {
		if u.ID == userID {
			delete(r.byAPIKey, u.APIKey)
			u.APIKey = apiKey
			r.byAPIKey[apiKey] = u
			return nil
		}
	}
	return domain.ErrUserNotFound
}

type stubRoomRepo struct {
	byCode    map[string]*domain.StoredRoom
	overrides map[string]map[string]int // roomID -> overrides
	links     map[string][]domain.Link
	findErr   error
}

func newStubRoomRepo() *stubRoomRepo {
	return &stubRoomRepo{
		byCode:    make(map[string]*domain.StoredRoom),
		overrides: make(map[string]map[string]int),
		links:     make(map[string][]domain.Link),
	}
}

func (r *stubRoomRepo) FindByCode(_ context.Context, code string) (*domain.StoredRoom, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	stored, ok := r.byCode[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *stubRoomRepo) FindPermissionOverrides(_ context.Context, roomID string) (map[string]int, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	out := make(map[string]int)
	for cap, rank := range r.overrides[roomID] {
		out[cap] = rank
	}
	return out, nil
}

func (r *stubRoomRepo) ListLinks(_ context.Context, roomID string) ([]domain.Link, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return append([]domain.Link(nil), r.links[roomID]...), nil
}

// recordingBroadcaster captures outbound events for assertions.
type recordingBroadcaster struct {
	roomEvents []string // roomID + ":" + event
	userEvents []string // email + ":" + event
	lastData   any
}

func (b *recordingBroadcaster) ToRoom(roomID, event string, payload any) {
	b.roomEvents = append(b.roomEvents, roomID+":"+event)
	b.lastData = payload
}

func (b *recordingBroadcaster) ToUser(email, event string, payload any) {
	b.userEvents = append(b.userEvents, email+":"+event)
	b.lastData = payload
}

func testSession(email string) domain.Session {
	return domain.Session{UserID: "id-" + email, Email: email, DisplayName: "Test User"}
}

func seedRegistry(t *testing.T) (*RegistryService, *stubUserRepo, *stubRoomRepo) {
	t.Helper()
	users := newStubUserRepo()
	rooms := newStubRoomRepo()
	rooms.byCode["ABC123"] = &domain.StoredRoom{ID: "room-1", Code: "ABC123", Name: "Biology"}
	reg := NewRegistryService(users, rooms, zerolog.Nop())
	return reg, users, rooms
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegistry_JoinByCode_LoadsRoom(t *testing.T) {
	reg, users, rooms := seedRegistry(t)
	rooms.overrides["room-1"] = map[string]int{domain.CapControlPoll: domain.TeacherPermissions}
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test", Permissions: domain.StudentPermissions})
	users.classRanks["id-a@x.test/room-1"] = domain.ModPermissions
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	room, err := reg.JoinByCode(context.Background(), "ABC123", testSession("a@x.test"))
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if room.ID != "room-1" || room.MemberCount() != 1 {
		t.Fatalf("unexpected room state: %+v", room)
	}
	if rank, _ := room.Threshold(domain.CapControlPoll); rank != domain.TeacherPermissions {
		t.Fatalf("override table not loaded, got %d", rank)
	}
	m, _ := room.Member("a@x.test")
	if m.ClassRank != domain.ModPermissions {
		t.Fatalf("stored class rank not applied, got %d", m.ClassRank)
	}
	if active, ok := reg.ActiveRoom("a@x.test"); !ok || active.ID != "room-1" {
		t.Fatalf("active room not tracked")
	}
}

func TestRegistry_JoinByCode_UnknownCode(t *testing.T) {
	reg, _, _ := seedRegistry(t)

	_, err := reg.JoinByCode(context.Background(), "NOPE", testSession("a@x.test"))
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if err.Error() != "no class with that code" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestRegistry_JoinByCode_UnenrolledFallsBackToDefaults(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	users.put(&domain.User{ID: "id-b@x.test", Email: "b@x.test"})

	room, err := reg.JoinByCode(context.Background(), "ABC123", testSession("b@x.test"))
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	m, _ := room.Member("b@x.test")
	if m.ClassRank != domain.DefaultClassPermissions[domain.CapUserDefaults] {
		t.Fatalf("expected userDefaults rank, got %d", m.ClassRank)
	}
}

func TestRegistry_Leave(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	sess := testSession("a@x.test")
	room, err := reg.JoinByCode(context.Background(), "ABC123", sess)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	reg.Leave(sess)
	if room.MemberCount() != 0 {
		t.Fatalf("member not removed")
	}
	if _, ok := reg.ActiveRoom("a@x.test"); ok {
		t.Fatalf("active room pointer should be cleared")
	}
	// leaving again is a no-op
	reg.Leave(sess)
}

func TestRegistry_JoinSecondRoomLeavesFirst(t *testing.T) {
	reg, users, rooms := seedRegistry(t)
	rooms.byCode["XYZ789"] = &domain.StoredRoom{ID: "room-2", Code: "XYZ789", Name: "Chemistry"}
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	sess := testSession("a@x.test")
	first, err := reg.JoinByCode(context.Background(), "ABC123", sess)
	if err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	second, err := reg.JoinByCode(context.Background(), "XYZ789", sess)
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}

	if _, still := first.Member("a@x.test"); still {
		t.Fatalf("membership in the first room must not survive joining another")
	}
	if first.MemberCount() != 0 || first.EmptySince().IsZero() {
		t.Fatalf("first room should be empty and reapable")
	}
	if active, ok := reg.ActiveRoom("a@x.test"); !ok || active.ID != second.ID {
		t.Fatalf("active room should be the second room")
	}
	if second.MemberCount() != 1 {
		t.Fatalf("second room should hold the member")
	}
}

func TestRegistry_EmptyRoomDeactivates(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	sess := testSession("a@x.test")
	room, err := reg.JoinByCode(context.Background(), "ABC123", sess)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !room.IsActive() {
		t.Fatalf("occupied room must be active")
	}

	reg.Leave(sess)
	if room.IsActive() {
		t.Fatalf("empty room must stop accepting activity")
	}

	if _, err := reg.JoinByCode(context.Background(), "ABC123", sess); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !room.IsActive() {
		t.Fatalf("rejoin must reactivate the room")
	}
}

// invalidatingRoomRepo decorates the stub with override-cache invalidation,
// mirroring the redis decorator.
type invalidatingRoomRepo struct {
	*stubRoomRepo
	invalidated []string
}

func (r *invalidatingRoomRepo) Invalidate(_ context.Context, roomID string) error {
	r.invalidated = append(r.invalidated, roomID)
	return nil
}

func TestRegistry_JanitorInvalidatesOverrideCache(t *testing.T) {
	users := newStubUserRepo()
	rooms := &invalidatingRoomRepo{stubRoomRepo: newStubRoomRepo()}
	rooms.byCode["ABC123"] = &domain.StoredRoom{ID: "room-1", Code: "ABC123", Name: "Biology"}
	reg := NewRegistryService(users, rooms, zerolog.Nop())
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	current := time.Now()
	reg.now = func() time.Time { return current }

	sess := testSession("a@x.test")
	if _, err := reg.JoinByCode(context.Background(), "ABC123", sess); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	reg.Leave(sess)

	current = current.Add(31 * time.Minute)
	reg.reapEmptyRooms(30 * time.Minute)

	if len(rooms.invalidated) != 1 || rooms.invalidated[0] != "room-1" {
		t.Fatalf("reaped room's override row not invalidated: %v", rooms.invalidated)
	}
}

func TestRegistry_JanitorReapsIdleRooms(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	users.put(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})
	reg.PutUser(&domain.User{ID: "id-a@x.test", Email: "a@x.test"})

	current := time.Now()
	reg.now = func() time.Time { return current }

	sess := testSession("a@x.test")
	if _, err := reg.JoinByCode(context.Background(), "ABC123", sess); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	reg.Leave(sess)

	// not idle long enough yet
	reg.reapEmptyRooms(30 * time.Minute)
	if reg.RoomCount() != 1 {
		t.Fatalf("room reaped too early")
	}

	current = current.Add(31 * time.Minute)
	reg.reapEmptyRooms(30 * time.Minute)
	if reg.RoomCount() != 0 {
		t.Fatalf("idle room not reaped")
	}
}

func TestRegistry_UserHydratesOnMiss(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	users.put(&domain.User{ID: "u1", Email: "a@x.test", Permissions: domain.TeacherPermissions})

	u, err := reg.User(context.Background(), "a@x.test")
	if err != nil {
		t.Fatalf("hydrate failed: %v", err)
	}
	if u.Permissions != domain.TeacherPermissions {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, ok := reg.CachedUser("a@x.test"); !ok {
		t.Fatalf("hydrated user should be cached")
	}

	users.findErr = errors.New("store down")
	if _, err := reg.User(context.Background(), "a@x.test"); err != nil {
		t.Fatalf("cached user should not need storage: %v", err)
	}
	if _, err := reg.User(context.Background(), "ghost@x.test"); err == nil {
		t.Fatalf("expected hydration error for unknown user")
	}
}
