package realtime

import "encoding/json"

// Envelope is the wire format for inbound and outbound realtime events.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is the serialized form of a server-to-client event.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// startPollPayload mirrors the startPoll event body.
type startPollPayload struct {
	Prompt                 string   `json:"prompt"`
	Answers                []string `json:"answers"`
	Blind                  bool     `json:"blind"`
	Weight                 bool     `json:"weight"`
	Tags                   []string `json:"tags,omitempty"`
	ExcludedRespondents    []string `json:"excludedRespondents,omitempty"`
	Indeterminate          []string `json:"indeterminate,omitempty"`
	AllowTextResponses     bool     `json:"allowTextResponses"`
	AllowMultipleResponses bool     `json:"allowMultipleResponses"`
}

// pollRespPayload mirrors the pollResp event body. Selection carries one or
// more option IDs depending on the poll's multi-response flag.
type pollRespPayload struct {
	Selection    []string `json:"selection,omitempty"`
	TextResponse string   `json:"textResponse,omitempty"`
	Weight       float64  `json:"weight,omitempty"`
}

type helpPayload struct {
	Reason string `json:"reason"`
}

type deleteTicketPayload struct {
	UserID string `json:"userId"`
}
