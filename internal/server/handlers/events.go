package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/events"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler streams lifecycle events over a WebSocket.
type EventsHandler struct {
	bus *events.Bus
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// HandleWebSocket upgrades the connection and forwards events until either side
// goes away. ?function= limits the stream to one function.
func (h *EventsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	function := r.URL.Query().Get("function")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}
	defer conn.CloseNow()

	sub, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	// Clients never send anything; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Events client connected")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Events client disconnected")
			return

		case event, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if function != "" && event.Function != function {
				continue
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				if websocket.CloseStatus(err) == -1 {
					log.Debug().Err(err).Msg("Failed to write event")
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, data)
}
