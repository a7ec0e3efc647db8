package sync

import (
	stdsync "sync"
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var mu stdsync.Mutex
	var got []Phase
	done := make(chan struct{})

	unsubscribe := bus.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Phase)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	bus.Publish(Event{Type: EventSetup, Phase: PhaseStarted})
	bus.Publish(Event{Type: EventSetup, Phase: PhaseCompleted})
	bus.Publish(Event{Type: EventExport, Phase: PhaseStarted})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive events")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseStarted, PhaseCompleted, PhaseStarted}
	for i, p := range want {
		if got[i] != p {
			t.Fatalf("event %d: expected %q, got %q", i, p, got[i])
		}
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	defer bus.Subscribe(func(ev Event) { first <- ev })()
	defer bus.Subscribe(func(ev Event) { second <- ev })()

	bus.Publish(Event{Type: EventImport, Phase: PhaseCompleted})

	for name, ch := range map[string]chan Event{"first": first, "second": second} {
		select {
		case ev := <-ch:
			if ev.Type != EventImport {
				t.Fatalf("%s: unexpected event %+v", name, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s subscriber did not receive the event", name)
		}
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	received := make(chan Event, subscriberBuffer)
	unsubscribe := bus.Subscribe(func(ev Event) { received <- ev })

	bus.Publish(Event{Type: EventExport, Phase: PhaseStarted})
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first event")
	}

	unsubscribe()
	bus.Publish(Event{Type: EventExport, Phase: PhaseCompleted})

	select {
	case ev := <-received:
		t.Fatalf("received event after unsubscribe: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()

	// A subscriber that never drains its handler.
	block := make(chan struct{})
	defer bus.Subscribe(func(ev Event) { <-block })()
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			bus.Publish(Event{Type: EventImport, Phase: PhaseStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
