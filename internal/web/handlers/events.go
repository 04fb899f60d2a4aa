package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/worker-attendance/internal/attendance"
	"github.com/sirupsen/logrus"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingInterval = 30 * time.Second
	eventsPongTimeout  = 2 * eventsPingInterval
)

// EventsHandler pushes attendance flow snapshots to the kiosk page over a websocket.
type EventsHandler struct {
	flow     *attendance.Flow
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewEventsHandler creates a new events handler. checkOrigin guards the handshake.
func NewEventsHandler(flow *attendance.Flow, checkOrigin func(r *http.Request) bool, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{
		flow: flow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// Stream sends the current snapshot and then one message per flow change until the
// client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.flow.Subscribe()
	defer cancel()

	// The reader only handles control frames and notices when the client disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(eventsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongTimeout))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(s attendance.Snapshot) bool {
		conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
		if err := conn.WriteJSON(s); err != nil {
			h.log.WithError(err).Debug("websocket write failed")
			return false
		}
		return true
	}

	if !write(h.flow.Snapshot()) {
		return
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case s, ok := <-events:
			if !ok || !write(s) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
