// Package sync keeps the local ledger store consistent with the remote
// authoritative store. One engine cycle imports remote changes, merging them
// field-by-field (remote trump, see Resolve), then exports dirty local
// records. Lifecycle events flow through an in-process Bus.
//
// Sync failures are never fatal: a failed cycle emits a failure event, the
// store stays fully usable offline, and the next attempt waits out an
// exponential backoff.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"splitledger/internal/remote"
	"splitledger/internal/storage"
)

// State is the engine's position in its session state machine.
type State string

const (
	StateIdle      State = "idle"
	StateExporting State = "exporting"
	StateImporting State = "importing"
	StateMerging   State = "merging"
	StateError     State = "error"
)

// Config holds engine tuning.
type Config struct {
	// Interval is the pause between successful cycles (default: 1m).
	Interval time.Duration

	// CycleTimeout bounds one export+import pass (default: 30s). A hung
	// network call cancels the cycle instead of wedging the engine.
	CycleTimeout time.Duration

	// MaxBackoff caps the exponential backoff after repeated failures
	// (default: 10m).
	MaxBackoff time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		CycleTimeout: 30 * time.Second,
		MaxBackoff:   10 * time.Minute,
	}
}

// Status is a point-in-time snapshot of the engine for callers like the
// HTTP status endpoint.
type Status struct {
	State     State
	LastSync  time.Time
	LastError string
	Failures  int
}

// Engine coordinates replication between the ledger store and the remote
// authoritative store.
type Engine struct {
	store  *storage.Repository
	remote remote.Store
	bus    *Bus
	config Config

	mu        stdsync.Mutex
	state     State
	lastSync  time.Time
	lastError string
	failures  int
	setupDone bool

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// triggerCh wakes the loop early, e.g. when the AMQP bridge reports a
	// change on another device or a local mutation wants a prompt export.
	triggerCh chan struct{}
}

func NewEngine(store *storage.Repository, remoteStore remote.Store, config Config) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.CycleTimeout <= 0 {
		config.CycleTimeout = DefaultConfig().CycleTimeout
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultConfig().MaxBackoff
	}
	return &Engine{
		store:     store,
		remote:    remoteStore,
		bus:       NewBus(),
		config:    config,
		state:     StateIdle,
		triggerCh: make(chan struct{}, 1),
	}
}

// Subscribe registers a lifecycle event handler; the returned func stops
// delivery.
func (e *Engine) Subscribe(handler func(Event)) func() {
	return e.bus.Subscribe(handler)
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:     e.state,
		LastSync:  e.lastSync,
		LastError: e.lastError,
		Failures:  e.failures,
	}
}

// Trigger requests a prompt cycle without waiting for the next tick.
func (e *Engine) Trigger() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// Start begins the background loop. Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("sync engine is already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.runLoop(ctx)

	slog.InfoContext(ctx, "Sync engine started",
		"interval", e.config.Interval,
		"cycle_timeout", e.config.CycleTimeout)
	return nil
}

// Stop gracefully stops the loop; an in-flight cycle is abandoned at its
// next cancellation point and commits nothing further.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	close(e.stopCh)

	select {
	case <-e.doneCh:
		slog.InfoContext(ctx, "Sync engine stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync engine stop timed out")
		return ctx.Err()
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.doneCh)

	// First cycle immediately on startup.
	e.runCycle(ctx)

	for {
		var wait time.Duration
		e.mu.Lock()
		if e.failures > 0 {
			wait = e.backoffDelay(e.failures)
		} else {
			wait = e.config.Interval
		}
		e.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-e.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-e.triggerCh:
			timer.Stop()
		}
		e.runCycle(ctx)
	}
}

// backoffDelay doubles the interval per consecutive failure, capped.
func (e *Engine) backoffDelay(failures int) time.Duration {
	delay := e.config.Interval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= e.config.MaxBackoff {
			return e.config.MaxBackoff
		}
	}
	if delay > e.config.MaxBackoff {
		return e.config.MaxBackoff
	}
	return delay
}

func (e *Engine) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, e.config.CycleTimeout)
	defer cancel()

	if err := e.Sync(cycleCtx); err != nil {
		slog.WarnContext(ctx, "Sync cycle failed", "error", err)
	}
}

// Sync runs one full cycle: setup (first time), import, then export.
// Importing first matters: remote changes are merged into the local state
// before dirty records are pushed, so a push carries merged entities and
// never clobbers a field another device changed. The error is also reported
// through the event bus; callers that only observe events may ignore it.
func (e *Engine) Sync(ctx context.Context) error {
	if err := e.ensureSetup(ctx); err != nil {
		e.recordFailure(err)
		return err
	}
	if err := e.importCycle(ctx); err != nil {
		e.recordFailure(err)
		return err
	}
	if err := e.exportCycle(ctx); err != nil {
		e.recordFailure(err)
		return err
	}

	e.mu.Lock()
	e.state = StateIdle
	e.lastSync = time.Now()
	e.lastError = ""
	e.failures = 0
	e.mu.Unlock()
	return nil
}

func (e *Engine) ensureSetup(ctx context.Context) error {
	e.mu.Lock()
	done := e.setupDone
	e.mu.Unlock()
	if done {
		return nil
	}

	e.bus.Publish(Event{Type: EventSetup, Phase: PhaseStarted})
	if err := e.remote.Setup(ctx); err != nil {
		e.bus.Publish(Event{Type: EventSetup, Phase: PhaseFailed, Err: err.Error()})
		return fmt.Errorf("remote setup: %w", err)
	}
	e.bus.Publish(Event{Type: EventSetup, Phase: PhaseCompleted})

	e.mu.Lock()
	e.setupDone = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) exportCycle(ctx context.Context) error {
	e.setState(StateExporting)
	e.bus.Publish(Event{Type: EventExport, Phase: PhaseStarted})

	dirty, err := e.store.DirtyRecords(ctx)
	if err != nil {
		e.bus.Publish(Event{Type: EventExport, Phase: PhaseFailed, Err: err.Error()})
		return fmt.Errorf("collect dirty records: %w", err)
	}
	if len(dirty) > 0 {
		if err := e.remote.Push(ctx, dirty); err != nil {
			e.bus.Publish(Event{Type: EventExport, Phase: PhaseFailed, Err: err.Error()})
			return fmt.Errorf("push records: %w", err)
		}
		if err := e.store.MarkExported(ctx, dirty); err != nil {
			e.bus.Publish(Event{Type: EventExport, Phase: PhaseFailed, Err: err.Error()})
			return fmt.Errorf("mark exported: %w", err)
		}
	}

	e.bus.Publish(Event{Type: EventExport, Phase: PhaseCompleted, Records: len(dirty)})
	slog.DebugContext(ctx, "Export cycle completed", "records", len(dirty))
	return nil
}

func (e *Engine) importCycle(ctx context.Context) error {
	e.setState(StateImporting)
	e.bus.Publish(Event{Type: EventImport, Phase: PhaseStarted})

	cursor, err := e.store.Cursor(ctx)
	if err != nil {
		e.bus.Publish(Event{Type: EventImport, Phase: PhaseFailed, Err: err.Error()})
		return fmt.Errorf("read cursor: %w", err)
	}

	records, next, err := e.remote.Pull(ctx, cursor)
	if err != nil {
		e.bus.Publish(Event{Type: EventImport, Phase: PhaseFailed, Err: err.Error()})
		return fmt.Errorf("pull records: %w", err)
	}
	if len(records) == 0 {
		e.bus.Publish(Event{Type: EventImport, Phase: PhaseCompleted})
		return nil
	}

	e.setState(StateMerging)
	summary, err := e.store.ApplyImport(ctx, records, next, Resolve)
	if err != nil {
		e.bus.Publish(Event{Type: EventImport, Phase: PhaseFailed, Err: err.Error()})
		return fmt.Errorf("apply import: %w", err)
	}

	e.bus.Publish(Event{Type: EventImport, Phase: PhaseCompleted, Summary: summary, Records: len(records)})
	slog.InfoContext(ctx, "Import cycle merged remote changes",
		"records", len(records),
		"created", summary.Created,
		"updated", summary.Updated,
		"deleted", summary.Deleted)
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) recordFailure(err error) {
	e.mu.Lock()
	e.state = StateError
	e.lastError = err.Error()
	e.failures++
	e.mu.Unlock()

	// Error is transient by definition: the engine goes back to Idle and
	// waits for the next trigger or backoff expiry.
	e.setState(StateIdle)
}
