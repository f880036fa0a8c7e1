package domain

import "strings"

// Permission ranks form a total order: a higher rank holds every capability of
// the ranks below it. All checks are >= comparisons against a threshold.
const (
	BannedPermissions  = 0
	GuestPermissions   = 1
	StudentPermissions = 2
	ModPermissions     = 3
	TeacherPermissions = 4
	ManagerPermissions = 5
)

// Real-time event names accepted from clients.
const (
	EventStartPoll     = "startPoll"
	EventPollResponse  = "pollResp"
	EventDeletePoll    = "deletePoll"
	EventHelp          = "help"
	EventDeleteTicket  = "deleteTicket"
	EventRefreshAPIKey = "refreshApiKey"
	EventPollUpdate    = "pollUpdate"
	EventClassUpdate   = "classUpdate"
)

// Capability names used as keys in a room's permission-override table.
const (
	CapManageClass    = "manageClass"
	CapManageStudents = "manageStudents"
	CapControlPoll    = "controlPoll"
	CapVotePoll       = "votePoll"
	CapSeePoll        = "seePoll"
	CapBreakHelp      = "breakHelp"
	CapAuxiliary      = "auxiliary"
	CapLinks          = "links"
	CapUserDefaults   = "userDefaults"
)

// GlobalEventPermissions maps an event to the minimum global rank that
// authorizes it regardless of room context.
var GlobalEventPermissions = map[string]int{
	EventRefreshAPIKey: GuestPermissions,
	EventClassUpdate:   ManagerPermissions,
}

// ClassEventPermissions maps an event to the minimum class-scoped rank that
// authorizes it, independent of per-room configuration.
var ClassEventPermissions = map[string]int{
	EventPollResponse: StudentPermissions,
	EventHelp:         StudentPermissions,
	EventDeleteTicket: ModPermissions,
}

// ClassPermissionMapper maps a configurable event to the capability whose
// threshold is looked up in the room's override table.
var ClassPermissionMapper = map[string]string{
	EventStartPoll:    CapControlPoll,
	EventDeletePoll:   CapControlPoll,
	EventPollResponse: CapVotePoll,
	EventHelp:         CapBreakHelp,
	EventDeleteTicket: CapBreakHelp,
}

// PassiveEvents are informational events that are dropped without a denial
// notification when the caller lacks permission.
var PassiveEvents = map[string]struct{}{
	EventPollUpdate:  {},
	EventClassUpdate: {},
}

// DefaultClassPermissions is the override table a room starts with when the
// store carries no row for it.
var DefaultClassPermissions = map[string]int{
	CapManageClass:    TeacherPermissions,
	CapManageStudents: TeacherPermissions,
	CapControlPoll:    ModPermissions,
	CapVotePoll:       StudentPermissions,
	CapSeePoll:        GuestPermissions,
	CapBreakHelp:      ModPermissions,
	CapAuxiliary:      ModPermissions,
	CapLinks:          ModPermissions,
	CapUserDefaults:   GuestPermissions,
}

// IsPassive reports whether event is exempt from denial notifications.
func IsPassive(event string) bool {
	_, ok := PassiveEvents[event]
	return ok
}

// EventDisplayName converts a camelCase event name into the human-readable
// form used in denial messages, e.g. "startPoll" -> "start poll".
func EventDisplayName(event string) string {
	var b strings.Builder
	for i, r := range event {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
