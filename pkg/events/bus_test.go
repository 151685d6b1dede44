package events

import "testing"

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish("test.kind", map[string]interface{}{"x": 1})

	evt := <-ch
	if evt.Kind != "test.kind" {
		t.Fatalf("evt.Kind = %q, want test.kind", evt.Kind)
	}
	if evt.Data["x"] != 1 {
		t.Fatalf("evt.Data[x] = %v, want 1", evt.Data["x"])
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish("test.kind", nil) // must not panic
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	bus.Publish("test.kind", nil)

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
}
