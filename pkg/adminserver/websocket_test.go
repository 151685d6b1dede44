package adminserver

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/laura-core/pkg/events"
)

// TestWatchEndpointStreamsEvents dials /watch, expects a "connected" ack,
// then expects a published event to arrive.
func TestWatchEndpointStreamsEvents(t *testing.T) {
	bus := events.NewBus()
	ts := httptest.NewServer(watchHandler(bus))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial /watch: %v", err)
	}
	defer ws.Close()

	var ack map[string]string
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read connect ack: %v", err)
	}
	if ack["type"] != "connected" {
		t.Fatalf("first message type = %q, want connected", ack["type"])
	}

	// Give the handler a moment to finish subscribing before publishing.
	time.Sleep(10 * time.Millisecond)
	bus.Publish("buffer_pool.evict", map[string]interface{}{"page_id": 7})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt events.Event
	if err := ws.ReadJSON(&evt); err != nil {
		t.Fatalf("read published event: %v", err)
	}
	if evt.Kind != "buffer_pool.evict" {
		t.Fatalf("event kind = %q, want buffer_pool.evict", evt.Kind)
	}
}
