package domain

import (
	"sync"
	"time"
)

// StoredRoom is the persistent-store view of a classroom: what the repository
// returns on a join-code lookup, before the room is loaded into memory.
type StoredRoom struct {
	ID      string   `json:"id" bson:"_id,omitempty"`
	Code    string   `json:"code" bson:"code"`
	Name    string   `json:"name" bson:"name"`
	OwnerID string   `json:"owner_id" bson:"owner_id"`
	Tags    []string `json:"tags,omitempty" bson:"tags,omitempty"`
}

// HelpTicket is a member's open request for assistance.
type HelpTicket struct {
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// Member is a room-scoped view of a connected user.
type Member struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	ClassRank   int         `json:"class_rank"`
	Help        *HelpTicket `json:"help,omitempty"`
	JoinedAt    time.Time   `json:"joined_at"`
}

// Room is a live classroom session: membership, the per-room permission
// override table, and at most one poll. All mutation goes through methods so
// a handler never observes a half-updated poll or member set.
type Room struct {
	mu sync.RWMutex

	ID      string
	Code    string
	Name    string
	OwnerID string

	Active      bool
	Permissions map[string]int // capability -> minimum class rank
	members     map[string]*Member
	poll        *Poll
	emptySince  time.Time
}

// NewRoom builds an in-memory room from its stored form and override table.
// Missing capabilities fall back to the defaults.
func NewRoom(stored *StoredRoom, overrides map[string]int, now time.Time) *Room {
	perms := make(map[string]int, len(DefaultClassPermissions))
	for cap, rank := range DefaultClassPermissions {
		perms[cap] = rank
	}
	for cap, rank := range overrides {
		perms[cap] = rank
	}
	return &Room{
		ID:          stored.ID,
		Code:        stored.Code,
		Name:        stored.Name,
		OwnerID:     stored.OwnerID,
		Permissions: perms,
		members:     make(map[string]*Member),
		emptySince:  now,
	}
}

// Threshold returns the override-table rank required for a capability.
func (r *Room) Threshold(capability string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rank, ok := r.Permissions[capability]
	return rank, ok
}

// AddMember inserts or refreshes a membership entry and marks the room active
// when it receives its first member.
func (r *Room) AddMember(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.Email] = m
	r.Active = true
	r.emptySince = time.Time{}
}

// RemoveMember drops a member and clears only presence-scoped transient state
// (the help ticket). Poll responses are historical and stay recorded. Returns
// true when the room is now empty.
func (r *Room) RemoveMember(email string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[email]; ok {
		m.Help = nil
		delete(r.members, email)
	}
	if len(r.members) == 0 {
		r.emptySince = now
		return true
	}
	return false
}

// Member returns the membership entry for an email.
func (r *Room) Member(email string) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[email]
	return m, ok
}

// HasMemberID reports whether a user ID belongs to a current member.
func (r *Room) HasMemberID(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberUserIDs returns the set of user IDs of current members.
func (r *Room) MemberUserIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[string]struct{}, len(r.members))
	for _, m := range r.members {
		ids[m.UserID] = struct{}{}
	}
	return ids
}

// MemberCount returns the number of connected members.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot of the current membership.
func (r *Room) Members() []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		clone := *m
		out = append(out, &clone)
	}
	return out
}

// EmptySince returns when the room last became empty (zero while occupied).
func (r *Room) EmptySince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emptySince
}

// IsActive reports whether the room is accepting activity.
func (r *Room) IsActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Active
}

// SetActive toggles the room's active flag.
func (r *Room) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Active = active
}

// StartPoll installs a new poll, replacing any existing one in a single step.
func (r *Room) StartPoll(p *Poll) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poll = p
}

// Poll returns the current poll, or nil when absent.
func (r *Room) Poll() *Poll {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.poll
}

// ClosePoll freezes the current poll. Returns ErrPollNotFound when absent.
func (r *Room) ClosePoll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poll == nil {
		return ErrPollNotFound
	}
	return r.poll.Close()
}

// ClearPoll resets the room back to the absent poll state. Clearing an absent
// poll is a no-op; the return value reports whether anything was removed.
func (r *Room) ClearPoll() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existed := r.poll != nil
	r.poll = nil
	return existed
}

// RecordResponse validates membership and delegates to the poll. The whole
// check-and-write happens under the room lock so concurrent responders never
// observe a half-updated poll.
func (r *Room) RecordResponse(email string, optionIDs []string, text string, weight float64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[email]
	if !ok {
		return ErrNotMember
	}
	if r.poll == nil {
		return ErrPollNotFound
	}
	return r.poll.Record(m.UserID, optionIDs, text, weight, now)
}

// SetHelp records a help ticket for a member.
func (r *Room) SetHelp(email, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Active {
		return ErrRoomInactive
	}
	m, ok := r.members[email]
	if !ok {
		return ErrNotMember
	}
	m.Help = &HelpTicket{Reason: reason, Time: now}
	return nil
}

// ClearHelpByID removes the help ticket of the member with the given user ID.
func (r *Room) ClearHelpByID(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.UserID == userID {
			m.Help = nil
			return nil
		}
	}
	return ErrNotMember
}
