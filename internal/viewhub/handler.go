package viewhub

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"borealis/internal/eventq"
	"borealis/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the connection, registers the client with the hub and
// feeds inbound frames into the host event queue. Queue admission applies:
// frames arriving while the queue is full are dropped, not buffered.
func Handler(hub *Hub, q *eventq.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := NewClient(uuid.NewString(), conn)
		hub.Register(client)
		defer hub.Unregister(client.ID())

		go client.WriteLoop()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame types.ViewFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				if !client.Queue(types.ViewFrame{Event: "error", Fields: map[string]any{"message": "invalid frame"}}) {
					return
				}
				continue
			}

			switch frame.Event {
			case "":
				if !client.Queue(types.ViewFrame{Event: "error", Fields: map[string]any{"message": "event name required"}}) {
					return
				}
			case "ping":
				if !client.Queue(types.ViewFrame{Event: "pong"}) {
					return
				}
			default:
				q.PostEvent(eventq.Event{Name: frame.Event, Args: frame.Args, Fields: frame.Fields})
			}
		}
	}
}
