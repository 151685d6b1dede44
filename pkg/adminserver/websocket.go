package adminserver

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/laura-core/pkg/events"
)

// upgrader accepts connections from any origin; this is a local inspection
// tool, not an internet-facing endpoint.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watchHandler upgrades a connection to WebSocket and streams every
// buffer-pool-eviction and lock-grant/abort event published to bus until
// the client disconnects.
func watchHandler(bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("adminserver: websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if bus == nil {
			conn.WriteJSON(map[string]string{
				"type":    "error",
				"message": "no event bus configured for this engine",
			})
			return
		}

		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		conn.WriteJSON(map[string]string{"type": "connected"})

		// Drain client reads so a disconnect (close frame or error) is
		// noticed promptly; the watch channel is send-only from the server.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case evt := <-ch:
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteJSON(map[string]string{"type": "heartbeat"}); err != nil {
					return
				}
			}
		}
	}
}
