package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestRoom(overrides map[string]int) *Room {
	stored := &StoredRoom{ID: "room-1", Code: "ABC123", Name: "Biology"}
	return NewRoom(stored, overrides, time.Now())
}

func TestNewRoom_MergesOverrides(t *testing.T) {
	room := newTestRoom(map[string]int{CapControlPoll: TeacherPermissions})

	if rank, _ := room.Threshold(CapControlPoll); rank != TeacherPermissions {
		t.Fatalf("override not applied, got %d", rank)
	}
	// untouched capabilities keep their defaults
	if rank, _ := room.Threshold(CapVotePoll); rank != StudentPermissions {
		t.Fatalf("default lost, got %d", rank)
	}
}

func TestRoom_MembershipLifecycle(t *testing.T) {
	room := newTestRoom(nil)
	now := time.Now()

	if room.IsActive() {
		t.Fatalf("fresh room should be inactive")
	}
	room.AddMember(&Member{UserID: "u1", Email: "a@x.test", ClassRank: StudentPermissions})
	if !room.IsActive() {
		t.Fatalf("room with a member should be active")
	}
	if !room.EmptySince().IsZero() {
		t.Fatalf("occupied room should have zero emptySince")
	}

	if empty := room.RemoveMember("a@x.test", now); !empty {
		t.Fatalf("expected room to report empty")
	}
	if room.EmptySince().IsZero() {
		t.Fatalf("empty room should record when it emptied")
	}
}

func TestRoom_LeaveClearsHelpNotResponses(t *testing.T) {
	room := newTestRoom(nil)
	now := time.Now()
	room.AddMember(&Member{UserID: "u1", Email: "a@x.test"})
	room.AddMember(&Member{UserID: "u2", Email: "b@x.test"})

	poll, err := NewPoll(PollInput{Prompt: "q", Answers: []string{"a"}}, "u2", now)
	if err != nil {
		t.Fatalf("NewPoll failed: %v", err)
	}
	room.StartPoll(poll)

	if err := room.RecordResponse("a@x.test", []string{"option-1"}, "", 1, now); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := room.SetHelp("a@x.test", "stuck", now); err != nil {
		t.Fatalf("set help failed: %v", err)
	}

	room.RemoveMember("a@x.test", now)

	// the response is historical and survives the departure
	if got := room.Poll().Tally()[0].Raw; got != 1 {
		t.Fatalf("poll response lost on leave, raw=%d", got)
	}
	for _, m := range room.Members() {
		if m.Help != nil {
			t.Fatalf("help ticket should be cleared on leave")
		}
	}
}

func TestRoom_RecordResponseRequiresMembership(t *testing.T) {
	room := newTestRoom(nil)
	now := time.Now()

	err := room.RecordResponse("ghost@x.test", []string{"option-1"}, "", 1, now)
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}

	room.AddMember(&Member{UserID: "u1", Email: "a@x.test"})
	err = room.RecordResponse("a@x.test", []string{"option-1"}, "", 1, now)
	if !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestRoom_ClearPollIsIdempotent(t *testing.T) {
	room := newTestRoom(nil)

	if room.ClearPoll() {
		t.Fatalf("clearing an absent poll should report false")
	}
	poll, _ := NewPoll(PollInput{Prompt: "q", Answers: []string{"a"}}, "u", time.Now())
	room.StartPoll(poll)
	if !room.ClearPoll() {
		t.Fatalf("clearing a present poll should report true")
	}
	if room.Poll() != nil {
		t.Fatalf("poll should be absent after clear")
	}
}

func TestRoom_HelpTickets(t *testing.T) {
	room := newTestRoom(nil)
	now := time.Now()

	room.AddMember(&Member{UserID: "u1", Email: "a@x.test"})
	room.SetActive(false)
	if err := room.SetHelp("a@x.test", "stuck", now); !errors.Is(err, ErrRoomInactive) {
		t.Fatalf("expected ErrRoomInactive, got %v", err)
	}

	room.SetActive(true)
	if err := room.SetHelp("a@x.test", "stuck", now); err != nil {
		t.Fatalf("set help failed: %v", err)
	}
	if err := room.ClearHelpByID("u1"); err != nil {
		t.Fatalf("clear help failed: %v", err)
	}
	if err := room.ClearHelpByID("nope"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for unknown user, got %v", err)
	}
}
