package sync

import (
	"log/slog"
	stdsync "sync"
	"time"

	"splitledger/internal/storage"
)

// EventType names a sync lifecycle stage.
type EventType string

const (
	EventSetup  EventType = "setup"
	EventImport EventType = "import"
	EventExport EventType = "export"
)

// Phase marks where in the stage the event was emitted.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Event is the immutable record delivered to subscribers. Err is the error
// text for failed phases; Summary carries the entity changes of a completed
// import or the record count of a completed export.
type Event struct {
	Type    EventType
	Phase   Phase
	Err     string
	Summary storage.ChangeSummary
	Records int
	At      time.Time
}

type subscriber struct {
	ch chan Event
}

// Bus is an ordered in-process publish/subscribe channel for sync events.
// Each subscriber is drained by its own goroutine over a buffered channel,
// so publishing never blocks the store's read/write path. A subscriber that
// falls more than subscriberBuffer events behind loses the oldest pending
// delivery.
type Bus struct {
	mu     stdsync.Mutex
	subs   map[int]*subscriber
	nextID int
}

const subscriberBuffer = 64

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers handler and returns an unsubscribe function. Events
// are delivered asynchronously but in publish order per subscriber.
func (b *Bus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			handler(ev)
		}
	}()

	var once stdsync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers ev to every current subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow subscriber: drop the oldest pending event to keep the
			// newest state visible.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				slog.Debug("Dropped sync event for slow subscriber",
					"type", ev.Type, "phase", ev.Phase)
			}
		}
	}
}
