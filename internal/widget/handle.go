package widget

import (
	"context"
	"log/slog"
	"sync"
)

// Component is the embedded widget instance on a page.
type Component interface {
	// Initialize dispatches the initialize call and waits for its outcome.
	Initialize(ctx context.Context, cfg Config) error
	// Initialized reports the widget's own persisted marker.
	Initialized() bool
	// MarkInitialized sets the persisted marker.
	MarkInitialized(ctx context.Context) error
	// ClearInitialized removes the persisted marker.
	ClearInitialized(ctx context.Context) error
}

// Handle is the exclusively owned reference to one widget instance. It
// carries the guards that keep initialize from being dispatched twice and
// the relay from being attached twice.
type Handle struct {
	component Component

	mu                 sync.Mutex
	initializationSent bool
	relay              *Relay
}

// NewHandle wraps a widget component.
func NewHandle(c Component) *Handle {
	return &Handle{component: c}
}

// Initialized reports the widget's persisted marker.
func (h *Handle) Initialized() bool {
	return h.component.Initialized()
}

// BeginInitialization sets the initializationSent guard. It returns false
// when the guard was already set, in which case nothing may be dispatched.
func (h *Handle) BeginInitialization() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initializationSent {
		return false
	}
	h.initializationSent = true
	return true
}

// InitializationSent reports the guard.
func (h *Handle) InitializationSent() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initializationSent
}

// Initialize forwards to the component.
func (h *Handle) Initialize(ctx context.Context, cfg Config) error {
	return h.component.Initialize(ctx, cfg)
}

// MarkInitialized sets the component's persisted marker.
func (h *Handle) MarkInitialized(ctx context.Context) error {
	return h.component.MarkInitialized(ctx)
}

// AttachRelay subscribes r to this handle's events. Listeners are never
// removed, so a second call (for instance after a reset) is a no-op that
// returns false.
func (h *Handle) AttachRelay(r *Relay) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.relay != nil {
		slog.Debug("Handle.AttachRelay: relay already attached, skipping")
		return false
	}
	h.relay = r
	return true
}

// Deliver passes a widget event to the attached relay. Events arriving
// before a relay is attached have no listener and are dropped.
func (h *Handle) Deliver(ctx context.Context, ev Event) {
	h.mu.Lock()
	r := h.relay
	h.mu.Unlock()
	if r == nil {
		slog.Debug("Handle.Deliver: no listener attached, dropping event", "kind", ev.Kind)
		return
	}
	r.Dispatch(ctx, ev)
}

// Reset clears the initializationSent guard and the persisted marker. An
// attached relay stays attached.
func (h *Handle) Reset(ctx context.Context) error {
	h.mu.Lock()
	h.initializationSent = false
	h.mu.Unlock()
	return h.component.ClearInitialized(ctx)
}
