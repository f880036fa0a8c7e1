package domain

import "testing"

func TestRanksAreOrdered(t *testing.T) {
	ranks := []int{
		BannedPermissions,
		GuestPermissions,
		StudentPermissions,
		ModPermissions,
		TeacherPermissions,
		ManagerPermissions,
	}
	for i := 1; i < len(ranks); i++ {
		if ranks[i] != ranks[i-1]+1 {
			t.Fatalf("ranks are not contiguous at index %d: %v", i, ranks)
		}
	}
}

func TestConfigurableEventsHaveCapabilities(t *testing.T) {
	for event, capability := range ClassPermissionMapper {
		if _, ok := DefaultClassPermissions[capability]; !ok {
			t.Fatalf("event %s maps to capability %s with no default threshold", event, capability)
		}
	}
}

func TestIsPassive(t *testing.T) {
	if !IsPassive(EventPollUpdate) || !IsPassive(EventClassUpdate) {
		t.Fatalf("pollUpdate and classUpdate must be passive")
	}
	if IsPassive(EventStartPoll) {
		t.Fatalf("startPoll must not be passive")
	}
}

func TestEventDisplayName(t *testing.T) {
	cases := map[string]string{
		"startPoll":     "start poll",
		"pollResp":      "poll resp",
		"deleteTicket":  "delete ticket",
		"refreshApiKey": "refresh api key",
		"help":          "help",
	}
	for in, want := range cases {
		if got := EventDisplayName(in); got != want {
			t.Fatalf("EventDisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
