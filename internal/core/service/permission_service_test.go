package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
)

// joinMember seeds a registry with one loaded room and one member at the given
// class rank.
func joinMember(t *testing.T, reg *RegistryService, users *stubUserRepo, email string, global, class int) domain.Session {
	t.Helper()
	sess := testSession(email)
	users.put(&domain.User{ID: sess.UserID, Email: email, Permissions: global})
	users.classRanks[sess.UserID+"/room-1"] = class
	reg.PutUser(&domain.User{ID: sess.UserID, Email: email, Permissions: global})

	room, err := reg.JoinByCode(context.Background(), "ABC123", sess)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	sess.RoomID = room.ID
	return sess
}

func TestPermission_GlobalTableAuthorizes(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())

	// refreshApiKey needs only guest rank globally, no room at all
	users.put(&domain.User{ID: "u1", Email: "a@x.test", Permissions: domain.GuestPermissions})
	sess := domain.Session{UserID: "u1", Email: "a@x.test"}

	got := gate.Authorize(context.Background(), sess, domain.EventRefreshAPIKey)
	if !got.Authorized {
		t.Fatalf("expected authorization, got %+v", got)
	}
}

func TestPermission_ClassTableAuthorizes(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	sess := joinMember(t, reg, users, "student@x.test", domain.GuestPermissions, domain.StudentPermissions)

	got := gate.Authorize(context.Background(), sess, domain.EventHelp)
	if !got.Authorized {
		t.Fatalf("class-intrinsic table should authorize help for a student, got %+v", got)
	}
}

func TestPermission_ConfigurableTableAuthorizes(t *testing.T) {
	reg, users, rooms := seedRegistry(t)
	// lower the controlPoll bar so students can run polls in this room
	rooms.overrides["room-1"] = map[string]int{domain.CapControlPoll: domain.StudentPermissions}
	gate := NewPermissionService(reg, users, zerolog.Nop())
	sess := joinMember(t, reg, users, "student@x.test", domain.GuestPermissions, domain.StudentPermissions)

	got := gate.Authorize(context.Background(), sess, domain.EventStartPoll)
	if !got.Authorized {
		t.Fatalf("override table should authorize startPoll, got %+v", got)
	}
}

func TestPermission_DeniedWithNotification(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	// default controlPoll threshold is mod; a student must be refused
	sess := joinMember(t, reg, users, "student@x.test", domain.GuestPermissions, domain.StudentPermissions)

	got := gate.Authorize(context.Background(), sess, domain.EventStartPoll)
	if got.Authorized {
		t.Fatalf("student must not start polls at default thresholds")
	}
	if got.Notify != "You do not have permission to use start poll." {
		t.Fatalf("unexpected denial message: %q", got.Notify)
	}
}

func TestPermission_PassiveEventsDenySilently(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	users.put(&domain.User{ID: "u1", Email: "a@x.test", Permissions: domain.GuestPermissions})
	sess := domain.Session{UserID: "u1", Email: "a@x.test"}

	got := gate.Authorize(context.Background(), sess, domain.EventClassUpdate)
	if got.Authorized || got.Notify != "" {
		t.Fatalf("passive denial must be silent, got %+v", got)
	}
}

func TestPermission_UnloadedRoomDeniesSilently(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	users.put(&domain.User{ID: "u1", Email: "a@x.test", Permissions: domain.ManagerPermissions})
	sess := domain.Session{UserID: "u1", Email: "a@x.test", RoomID: "stale-room"}

	got := gate.Authorize(context.Background(), sess, domain.EventStartPoll)
	if got.Authorized || got.Notify != "" {
		t.Fatalf("stale room reference must deny silently, got %+v", got)
	}
}

func TestPermission_ConfigurableEventNeedsRoom(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	users.put(&domain.User{ID: "u1", Email: "a@x.test", Permissions: domain.ManagerPermissions})
	sess := domain.Session{UserID: "u1", Email: "a@x.test"}

	got := gate.Authorize(context.Background(), sess, domain.EventDeletePoll)
	if got.Authorized || got.Notify != "" {
		t.Fatalf("configurable event without a room must deny silently, got %+v", got)
	}
}

func TestPermission_UnknownCallerTreatedAsGuest(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	// load the room via a registered member
	joinMember(t, reg, users, "student@x.test", domain.GuestPermissions, domain.StudentPermissions)

	// nothing stored for this address-keyed identity
	sess := domain.Session{Email: "203.0.113.9:52100", RoomID: "room-1"}

	got := gate.Authorize(context.Background(), sess, domain.EventStartPoll)
	if got.Authorized {
		t.Fatalf("unknown caller must not start polls")
	}
	if got.Notify != "You do not have permission to use start poll." {
		t.Fatalf("unknown caller must get a clean denial, got %q", got.Notify)
	}

	// guest global rank still clears the global table
	got = gate.Authorize(context.Background(), sess, domain.EventRefreshAPIKey)
	if !got.Authorized {
		t.Fatalf("guest global rank should clear the global table, got %+v", got)
	}
}

func TestPermission_HydrationFailureIsHardDeny(t *testing.T) {
	reg, users, _ := seedRegistry(t)
	gate := NewPermissionService(reg, users, zerolog.Nop())
	users.findErr = errors.New("store down")
	sess := domain.Session{UserID: "u1", Email: "ghost@x.test"}

	got := gate.Authorize(context.Background(), sess, domain.EventRefreshAPIKey)
	if got.Authorized {
		t.Fatalf("hydration failure must deny")
	}
	if !strings.HasPrefix(got.Notify, "Error Number ") ||
		!strings.HasSuffix(got.Notify, ": There was a server error try again.") {
		t.Fatalf("unexpected error message: %q", got.Notify)
	}
}

func TestPermission_EarlyExitPrefersGlobalTable(t *testing.T) {
	reg, users, rooms := seedRegistry(t)
	// make the configurable table impossible; a manager must still pass via
	// the global table for classUpdate
	rooms.overrides["room-1"] = map[string]int{domain.CapControlPoll: domain.ManagerPermissions + 1}
	gate := NewPermissionService(reg, users, zerolog.Nop())
	sess := joinMember(t, reg, users, "boss@x.test", domain.ManagerPermissions, domain.BannedPermissions)

	got := gate.Authorize(context.Background(), sess, domain.EventClassUpdate)
	if !got.Authorized {
		t.Fatalf("global rank must authorize before class tables are consulted, got %+v", got)
	}
}
