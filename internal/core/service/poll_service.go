package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
)

// PollService owns the poll lifecycle for every room: absent -> active ->
// closed -> absent. Starting is transactional: every lookup happens before
// the room is touched, and any fault leaves the poll state unchanged.
type PollService struct {
	registry    ports.Registry
	broadcaster ports.Broadcaster
	logger      zerolog.Logger
	now         func() time.Time
}

func NewPollService(registry ports.Registry, broadcaster ports.Broadcaster, logger zerolog.Logger) *PollService {
	return &PollService{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// pollStartedPayload is the broadcast sent to the room when a poll begins.
// Blind polls withhold live tallies, not the poll itself.
type pollStartedPayload struct {
	Prompt        string              `json:"prompt"`
	Options       []domain.PollOption `json:"options"`
	Blind         bool                `json:"blind"`
	AllowText     bool                `json:"allow_text"`
	AllowMultiple bool                `json:"allow_multiple"`
}

// Start validates the payload, resolves the caller's room, and installs a new
// active poll, replacing any existing one in a single step.
func (s *PollService) Start(ctx context.Context, sess domain.Session, input domain.PollInput) error {
	room, ok := s.callerRoom(sess)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if !room.IsActive() {
		return domain.ErrRoomInactive
	}

	// Excluded and indeterminate sets may reference only current members;
	// stale or forged IDs are dropped before the poll stores them.
	members := room.MemberUserIDs()
	input.Excluded = onlyMembers(input.Excluded, members)
	input.Indeterminate = onlyMembers(input.Indeterminate, members)

	poll, err := domain.NewPoll(input, sess.UserID, s.now())
	if err != nil {
		return err
	}

	room.StartPoll(poll)
	s.logger.Info().
		Str("room_id", room.ID).
		Str("prompt", poll.Prompt).
		Int("options", len(poll.Options)).
		Msg("poll started")

	s.broadcaster.ToRoom(room.ID, domain.EventStartPoll, pollStartedPayload{
		Prompt:        poll.Prompt,
		Options:       poll.Options,
		Blind:         poll.Blind,
		AllowText:     poll.AllowText,
		AllowMultiple: poll.AllowMultiple,
	})
	return nil
}

// Respond records the caller's answer, overwriting any prior one. The
// answer's effect on tallies is rebroadcast unless the poll is blind.
func (s *PollService) Respond(ctx context.Context, sess domain.Session, input ports.PollResponseInput) error {
	room, ok := s.callerRoom(sess)
	if !ok {
		return domain.ErrRoomNotFound
	}

	err := room.RecordResponse(sess.Email, input.OptionIDs, input.Text, input.Weight, s.now())
	if err != nil {
		return err
	}

	poll := room.Poll()
	if poll != nil && !poll.Blind {
		s.broadcaster.ToRoom(room.ID, domain.EventPollUpdate, poll.Tally())
	}
	return nil
}

// Results recomputes the aggregate view from the response map.
func (s *PollService) Results(ctx context.Context, roomID string) ([]domain.OptionTally, error) {
	room, ok := s.registry.Room(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	poll := room.Poll()
	if poll == nil {
		return nil, domain.ErrPollNotFound
	}
	return poll.Tally(), nil
}

// Close freezes the poll and publishes the final tallies.
func (s *PollService) Close(ctx context.Context, sess domain.Session) error {
	room, ok := s.callerRoom(sess)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.ClosePoll(); err != nil {
		return err
	}
	if poll := room.Poll(); poll != nil {
		s.broadcaster.ToRoom(room.ID, domain.EventPollUpdate, poll.Tally())
	}
	return nil
}

// Delete resets the room to the absent poll state. Deleting when no poll
// exists is a no-op, not an error.
func (s *PollService) Delete(ctx context.Context, sess domain.Session) error {
	room, ok := s.callerRoom(sess)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if room.ClearPoll() {
		s.logger.Info().Str("room_id", room.ID).Msg("poll deleted")
		s.broadcaster.ToRoom(room.ID, domain.EventDeletePoll, nil)
	}
	return nil
}

// onlyMembers keeps the IDs present in the membership set, preserving order.
func onlyMembers(ids []string, members map[string]struct{}) []string {
	if len(ids) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := members[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// callerRoom resolves the caller's room from the active-room pointer first,
// falling back to the session's room reference.
func (s *PollService) callerRoom(sess domain.Session) (*domain.Room, bool) {
	if room, ok := s.registry.ActiveRoom(sess.Email); ok {
		return room, true
	}
	if sess.RoomID == "" {
		return nil, false
	}
	return s.registry.Room(sess.RoomID)
}

// IsExpected reports whether err is a domain outcome the transport should
// surface verbatim, as opposed to an internal fault.
func IsExpected(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrRoomNotFound) ||
		errors.Is(err, domain.ErrRoomInactive) ||
		errors.Is(err, domain.ErrNotMember) ||
		errors.Is(err, domain.ErrPollNotFound) ||
		errors.Is(err, domain.ErrPollNotActive) ||
		errors.Is(err, domain.ErrRespondentBarred)
}
