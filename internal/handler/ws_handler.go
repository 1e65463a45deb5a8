package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/events"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/service"
	ws "github.com/fenixctl/enroller/internal/websocket"
)

// eventBuffer is how many run events a slow client may lag behind before
// events are dropped for it.
const eventBuffer = 64

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams run progress to operators over WebSocket.
type WSHandler struct {
	bus      events.Bus
	runs     *service.EnrollmentService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(bus events.Bus, runs *service.EnrollmentService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		bus:      bus,
		runs:     runs,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Events godoc
// WS /ws/v1/events
// Greets with the run status, then forwards every run event. Clients may
// send ping, status and cancel actions.
func (h *WSHandler) Events(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("remote", c.ClientIP()).Logger()
	wsLog.Info().Msg("Operator connected")

	sub, unsubscribe := h.bus.Subscribe(eventBuffer)
	defer unsubscribe()

	out := make(chan interface{}, 8)
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, sub, out, stop, wsLog)
	}()
	defer func() {
		close(stop)
		<-writerDone
	}()

	send := func(v interface{}) bool {
		select {
		case out <- v:
			return true
		case <-writerDone:
			return false
		}
	}

	ctx := c.Request.Context()
	if !send(ws.StatusMessage{Event: ws.EventStatus, Status: h.runs.Status(ctx)}) {
		return
	}

	ws.KeepAlive(conn)
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var reply interface{}
		switch msg.Action {
		case ws.ActionPing:
			reply = ws.SimpleResponse{Event: ws.EventPong}
		case ws.ActionStatus:
			reply = ws.StatusMessage{Event: ws.EventStatus, Status: h.runs.Status(ctx)}
		case ws.ActionCancel:
			if err := h.runs.Cancel(); err != nil {
				reply = ws.ErrorResponse{Event: ws.EventError, Error: err.Error()}
			} else {
				wsLog.Warn().Msg("Run cancelled over WebSocket")
				reply = ws.SimpleResponse{Event: ws.EventCancelled}
			}
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			reply = ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)}
		}
		if !send(reply) {
			return
		}
	}
}

// writeLoop owns every write to conn.
func (h *WSHandler) writeLoop(conn *websocket.Conn, sub <-chan model.RunEvent, out <-chan interface{}, stop <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-stop:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			err = ws.WriteTyped(conn, ws.RunEventMessage{Event: ws.EventRun, Run: ev})
		case v := <-out:
			err = ws.WriteTyped(conn, v)
		case <-ticker.C:
			err = ws.WritePing(conn)
		}
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				log.Debug().Err(err).Msg("Write failed")
			}
			// Unblock the reader.
			_ = conn.Close()
			return
		}
	}
}
