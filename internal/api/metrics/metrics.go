// Package metrics defines all custom Prometheus metrics for the classroom
// session manager. It is the single source of truth for metric names, labels,
// and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "classroom"

// EventsProcessedTotal counts realtime events that passed the permission gate
// and completed handling.
// Label:
//   - event: the inbound event name (e.g. "pollResp")
var EventsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Total number of realtime events successfully handled.",
	},
	[]string{"event"},
)

// EventsDeniedTotal counts events rejected by the permission gate.
// Label:
//   - event: the inbound event name
var EventsDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_denied_total",
		Help:      "Total number of realtime events denied by the permission gate.",
	},
	[]string{"event"},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
// Label:
//   - scope: "http" or "realtime"
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"scope"},
)

// PollsStartedTotal counts polls started across all rooms.
var PollsStartedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_started_total",
		Help:      "Total number of polls started.",
	},
)

// PollResponsesTotal counts accepted poll responses (overwrites included).
var PollResponsesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_responses_total",
		Help:      "Total number of poll responses accepted.",
	},
)

// ActiveRooms tracks the number of rooms currently loaded in memory.
var ActiveRooms = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_rooms",
		Help:      "Number of rooms currently loaded in the registry.",
	},
)

// ActiveConnections tracks the number of live websocket connections.
var ActiveConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Number of live websocket connections.",
	},
)

// EventHandlingDuration measures how long one realtime event takes from
// dequeue to completion.
// Label:
//   - event: the inbound event name, or "error" on failure
var EventHandlingDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_handling_duration_seconds",
		Help:      "Duration of realtime event handling from dequeue to completion.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"event"},
)
