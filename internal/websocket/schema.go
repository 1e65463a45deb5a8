package websocket

import "github.com/fenixctl/enroller/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionStatus Action = "status"
	ActionCancel Action = "cancel"
)

// RequestEnvelope is the only client message shape; actions carry no payload.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventPong      Event = "pong"
	EventStatus    Event = "status"
	EventRun       Event = "run_event"
	EventCancelled Event = "cancel_requested"
)

// RunEventMessage forwards one progress event of the active run.
type RunEventMessage struct {
	Event Event          `json:"event"`
	Run   model.RunEvent `json:"run"`
}

// StatusMessage answers a status action and greets new connections.
type StatusMessage struct {
	Event  Event           `json:"event"`
	Status model.RunStatus `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// SimpleResponse carries events without a payload (pong, cancel_requested).
type SimpleResponse struct {
	Event Event `json:"event"`
}
