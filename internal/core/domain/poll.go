package domain

import (
	"fmt"
	"math"
	"time"
)

// PollState is the lifecycle state of a live poll. The absent state is
// represented by the room holding no poll at all, so the machine is
// absent -> active -> closed -> absent.
type PollState string

const (
	PollActive PollState = "active"
	PollClosed PollState = "closed"
)

// pollTransitions defines the allowed state machine transitions between live
// states. Deletion back to absent is legal from either live state and is
// handled by the owning room.
var pollTransitions = map[PollState][]PollState{
	PollActive: {PollClosed},
}

var ErrInvalidPollTransition = fmt.Errorf("invalid poll state transition")

// CanTransitionTo reports whether a transition from s to next is valid.
func (s PollState) CanTransitionTo(next PollState) bool {
	for _, allowed := range pollTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PollOption is one selectable answer. The color is generated at poll start
// so results stay visually distinguishable.
type PollOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// PollResponse is a single member's answer. Responses are keyed by user ID in
// the poll, so re-submission overwrites rather than duplicates.
type PollResponse struct {
	OptionIDs []string  `json:"option_ids,omitempty"`
	Text      string    `json:"text,omitempty"`
	Weight    float64   `json:"weight"`
	At        time.Time `json:"at"`
}

// PollInput carries everything needed to start a poll.
type PollInput struct {
	Prompt        string
	Answers       []string
	Blind         bool
	Weighted      bool
	Tags          []string
	Excluded      []string // user IDs barred from responding
	Indeterminate []string // user IDs recorded but kept out of consensus
	AllowText     bool
	AllowMultiple bool
}

// Poll is the single live poll of a room.
type Poll struct {
	Prompt        string                  `json:"prompt"`
	Options       []PollOption            `json:"options"`
	State         PollState               `json:"state"`
	Blind         bool                    `json:"blind"`
	Weighted      bool                    `json:"weighted"`
	Tags          []string                `json:"tags,omitempty"`
	AllowText     bool                    `json:"allow_text"`
	AllowMultiple bool                    `json:"allow_multiple"`
	Excluded      map[string]struct{}     `json:"-"`
	Indeterminate map[string]struct{}     `json:"-"`
	Responses     map[string]PollResponse `json:"-"`
	StartedBy     string                  `json:"started_by"`
	StartedAt     time.Time               `json:"started_at"`
}

// NewPoll validates the input and builds an active poll with one evenly
// distributed hue per answer option.
func NewPoll(in PollInput, startedBy string, now time.Time) (*Poll, error) {
	if in.Prompt == "" {
		return nil, fmt.Errorf("%w: poll prompt must not be empty", ErrValidation)
	}
	if len(in.Answers) == 0 {
		return nil, fmt.Errorf("%w: poll needs at least one answer", ErrValidation)
	}

	colors := generateColors(len(in.Answers))
	options := make([]PollOption, len(in.Answers))
	for i, label := range in.Answers {
		if label == "" {
			return nil, fmt.Errorf("%w: answer %d has no label", ErrValidation, i+1)
		}
		options[i] = PollOption{
			ID:    fmt.Sprintf("option-%d", i+1),
			Label: label,
			Color: colors[i],
		}
	}

	return &Poll{
		Prompt:        in.Prompt,
		Options:       options,
		State:         PollActive,
		Blind:         in.Blind,
		Weighted:      in.Weighted,
		Tags:          in.Tags,
		AllowText:     in.AllowText,
		AllowMultiple: in.AllowMultiple,
		Excluded:      toSet(in.Excluded),
		Indeterminate: toSet(in.Indeterminate),
		Responses:     make(map[string]PollResponse),
		StartedBy:     startedBy,
		StartedAt:     now,
	}, nil
}

// Close freezes the poll. Responses submitted afterwards are rejected.
func (p *Poll) Close() error {
	if !p.State.CanTransitionTo(PollClosed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPollTransition, p.State, PollClosed)
	}
	p.State = PollClosed
	return nil
}

// Record stores a member's response, overwriting any prior one (last write
// wins). Excluded respondents are rejected; indeterminate respondents are
// recorded and filtered out later at aggregation time.
func (p *Poll) Record(userID string, optionIDs []string, text string, weight float64, now time.Time) error {
	if p.State != PollActive {
		return ErrPollNotActive
	}
	if _, barred := p.Excluded[userID]; barred {
		return ErrRespondentBarred
	}
	if text != "" && !p.AllowText {
		return fmt.Errorf("%w: this poll does not accept text responses", ErrValidation)
	}
	if len(optionIDs) > 1 && !p.AllowMultiple {
		return fmt.Errorf("%w: this poll accepts a single selection", ErrValidation)
	}
	if len(optionIDs) == 0 && text == "" {
		return fmt.Errorf("%w: empty response", ErrValidation)
	}
	for _, id := range optionIDs {
		if !p.hasOption(id) {
			return fmt.Errorf("%w: unknown option %q", ErrValidation, id)
		}
	}

	if weight <= 0 {
		weight = 1
	}
	p.Responses[userID] = PollResponse{
		OptionIDs: append([]string(nil), optionIDs...),
		Text:      text,
		Weight:    weight,
		At:        now,
	}
	return nil
}

func (p *Poll) hasOption(id string) bool {
	for _, o := range p.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// OptionTally is the derived per-option result. Raw counts every recorded
// respondent; Consensus excludes indeterminate respondents and applies
// weights when the poll is weighted. Both are recomputed on demand, never
// cached.
type OptionTally struct {
	OptionID  string  `json:"option_id"`
	Label     string  `json:"label"`
	Color     string  `json:"color"`
	Raw       int     `json:"raw"`
	Consensus float64 `json:"consensus"`
}

// Tally recomputes the per-option results from the response map.
func (p *Poll) Tally() []OptionTally {
	tallies := make([]OptionTally, len(p.Options))
	for i, o := range p.Options {
		tallies[i] = OptionTally{OptionID: o.ID, Label: o.Label, Color: o.Color}
	}
	index := make(map[string]*OptionTally, len(tallies))
	for i := range tallies {
		index[tallies[i].OptionID] = &tallies[i]
	}

	for userID, resp := range p.Responses {
		_, indeterminate := p.Indeterminate[userID]
		weight := 1.0
		if p.Weighted {
			weight = resp.Weight
		}
		for _, id := range resp.OptionIDs {
			t, ok := index[id]
			if !ok {
				continue
			}
			t.Raw++
			if !indeterminate {
				t.Consensus += weight
			}
		}
	}
	return tallies
}

// TextResponses returns all free-text answers keyed by user ID.
func (p *Poll) TextResponses() map[string]string {
	out := make(map[string]string)
	for userID, resp := range p.Responses {
		if resp.Text != "" {
			out[userID] = resp.Text
		}
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// generateColors returns n hex colors with evenly spaced hues so options stay
// visually distinguishable at any count.
func generateColors(n int) []string {
	colors := make([]string, n)
	for i := 0; i < n; i++ {
		hue := float64(i) * 360.0 / float64(n)
		colors[i] = hslToHex(hue, 0.65, 0.5)
	}
	return colors
}

// hslToHex converts an HSL triple (h in degrees, s and l in [0,1]) to a
// "#rrggbb" string.
func hslToHex(h, s, l float64) string {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := l - c/2
	return fmt.Sprintf("#%02x%02x%02x",
		int(math.Round((r+m)*255)),
		int(math.Round((g+m)*255)),
		int(math.Round((b+m)*255)))
}
