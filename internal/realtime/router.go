package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/classpoint/classroom-system/internal/api/metrics"
	"github.com/classpoint/classroom-system/internal/core/domain"
	"github.com/classpoint/classroom-system/internal/core/ports"
	"github.com/classpoint/classroom-system/internal/core/service"
	"github.com/classpoint/classroom-system/internal/infrastructure/queue"
)

// Outbound event names for transport-level notices.
const (
	eventMessage       = "message"
	eventError         = "error"
	eventAPIKeyUpdated = "apiKeyUpdated"
)

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage) error

// Router takes inbound envelopes through the admission pipeline: rate limit,
// permission gate, then the room-sharded dispatcher, which guarantees events
// for one room are handled in arrival order.
type Router struct {
	registry   ports.Registry
	limiter    ports.RateLimiter
	gate       ports.PermissionGate
	dispatcher *queue.Dispatcher
	hub        *Hub
	logger     zerolog.Logger

	handlers map[string]eventHandler
}

func NewRouter(
	registry ports.Registry,
	limiter ports.RateLimiter,
	gate ports.PermissionGate,
	dispatcher *queue.Dispatcher,
	hub *Hub,
	polls ports.PollService,
	help ports.HelpService,
	auth ports.AuthService,
	logger zerolog.Logger,
) *Router {
	r := &Router{
		registry:   registry,
		limiter:    limiter,
		gate:       gate,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
	r.handlers = map[string]eventHandler{
		domain.EventStartPoll:     r.handleStartPoll(polls),
		domain.EventPollResponse:  r.handlePollResponse(polls),
		domain.EventDeletePoll:    r.handleDeletePoll(polls),
		domain.EventHelp:          r.handleHelp(help),
		domain.EventDeleteTicket:  r.handleDeleteTicket(help),
		domain.EventRefreshAPIKey: r.handleRefreshAPIKey(auth),
	}
	return r
}

// Handle runs the admission pipeline for one inbound envelope and, if it
// passes, enqueues the handler on the room's shard.
func (r *Router) Handle(ctx context.Context, c *Client, env Envelope) {
	handler, known := r.handlers[env.Event]
	if !known {
		c.Send(eventMessage, "Unknown event.")
		return
	}

	sess := r.syncRoom(c)

	decision := r.limiter.Check(ctx, "", sess.Email, c.remoteAddr, "/ws/"+env.Event)
	if !decision.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues("realtime").Inc()
		c.Send(eventMessage, fmt.Sprintf(
			"You are being rate limited. Please try again in %d seconds.",
			retrySeconds(decision.RetryAfter)))
		return
	}

	gate := r.gate.Authorize(ctx, sess, env.Event)
	if !gate.Authorized {
		metrics.EventsDeniedTotal.WithLabelValues(env.Event).Inc()
		if gate.Notify != "" {
			c.Send(eventMessage, gate.Notify)
		}
		return
	}

	r.dispatcher.Enqueue(queue.Task{
		RoomID: sess.RoomID,
		Run: func(taskCtx context.Context) error {
			return r.runHandler(taskCtx, c, env, handler)
		},
	})
}

// runHandler wraps one handler invocation with panic recovery, timing, and
// error translation. Domain outcomes go back to the caller verbatim; anything
// else becomes a numbered opaque error.
func (r *Router) runHandler(ctx context.Context, c *Client, env Envelope, handler eventHandler) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s handler: %v", env.Event, rec)
			r.sendServerError(c, err)
		}
		label := env.Event
		if err != nil {
			label = "error"
		}
		metrics.EventHandlingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	if err = handler(ctx, c, env.Data); err != nil {
		if service.IsExpected(err) {
			c.Send(eventMessage, err.Error())
			return nil
		}
		r.sendServerError(c, err)
		return err
	}

	metrics.EventsProcessedTotal.WithLabelValues(env.Event).Inc()
	return nil
}

// sendServerError hides the fault behind a correlation number. The number is
// logged server-side so the report can be matched to the cause.
func (r *Router) sendServerError(c *Client, cause error) {
	n := domain.NextErrorNumber()
	r.logger.Error().Err(cause).
		Int64("error_number", n).
		Str("email", c.Session().Email).
		Msg("realtime handler failed")
	c.Send(eventError, fmt.Sprintf("Error Number %d: There was a server error try again.", n))
}

// syncRoom refreshes the client's room binding from the registry. Joins happen
// over HTTP, so a connected client's room can change between events.
func (r *Router) syncRoom(c *Client) domain.Session {
	sess := c.Session()
	room, ok := r.registry.ActiveRoom(sess.Email)
	switch {
	case ok && room.ID != sess.RoomID:
		r.hub.moveToRoom(c, room.ID)
	case !ok && sess.RoomID != "":
		r.hub.moveToRoom(c, "")
	}
	return c.Session()
}

func (r *Router) handleStartPoll(polls ports.PollService) eventHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var p startPollPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: malformed startPoll payload", domain.ErrValidation)
		}
		err := polls.Start(ctx, c.Session(), domain.PollInput{
			Prompt:        p.Prompt,
			Answers:       p.Answers,
			Blind:         p.Blind,
			Weighted:      p.Weight,
			Tags:          p.Tags,
			Excluded:      p.ExcludedRespondents,
			Indeterminate: p.Indeterminate,
			AllowText:     p.AllowTextResponses,
			AllowMultiple: p.AllowMultipleResponses,
		})
		if err == nil {
			metrics.PollsStartedTotal.Inc()
		}
		return err
	}
}

func (r *Router) handlePollResponse(polls ports.PollService) eventHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var p pollRespPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: malformed pollResp payload", domain.ErrValidation)
		}
		err := polls.Respond(ctx, c.Session(), ports.PollResponseInput{
			OptionIDs: p.Selection,
			Text:      p.TextResponse,
			Weight:    p.Weight,
		})
		if err == nil {
			metrics.PollResponsesTotal.Inc()
		}
		return err
	}
}

func (r *Router) handleDeletePoll(polls ports.PollService) eventHandler {
	return func(ctx context.Context, c *Client, _ json.RawMessage) error {
		return polls.Delete(ctx, c.Session())
	}
}

func (r *Router) handleHelp(help ports.HelpService) eventHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var p helpPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("%w: malformed help payload", domain.ErrValidation)
			}
		}
		return help.Raise(ctx, c.Session(), p.Reason)
	}
}

func (r *Router) handleDeleteTicket(help ports.HelpService) eventHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		var p deleteTicketPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: malformed deleteTicket payload", domain.ErrValidation)
		}
		return help.DeleteTicket(ctx, c.Session(), p.UserID)
	}
}

func (r *Router) handleRefreshAPIKey(auth ports.AuthService) eventHandler {
	return func(ctx context.Context, c *Client, _ json.RawMessage) error {
		sess := c.Session()
		key, err := auth.RefreshAPIKey(ctx, sess.UserID, sess.Email)
		if err != nil {
			return err
		}
		c.Send(eventAPIKeyUpdated, key)
		return nil
	}
}

// retrySeconds rounds a retry hint up to whole seconds, defaulting to the full
// window when the limiter gave none.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return int(service.RateLimitWindow / time.Second)
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
