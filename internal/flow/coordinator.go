package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/params"
	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

// WidgetLocator finds the widget on the page. It returns false when the page
// has no widget element.
type WidgetLocator interface {
	Widget() (*widget.Handle, bool)
}

// Dependencies holds the collaborators of a SessionCoordinator.
type Dependencies struct {
	Provisioner provision.Provisioner
	// Snapshots is optional; without it parameters are never persisted.
	Snapshots *params.Snapshotter
	Widgets   WidgetLocator
	Opener    widget.URLOpener
	Notifier  widget.Notifier
}

// SessionCoordinator owns the initialization state of one page session.
// At most one trigger is ever mid-flight: the in-flight guard is taken
// synchronously on entry and released when the trigger returns.
type SessionCoordinator struct {
	deps  Dependencies
	stats *widget.Statistics

	mu                sync.Mutex
	widgetInitialized bool
	processing        bool
	token             string
	session           *models.SessionContext

	wg sync.WaitGroup
}

// NewSessionCoordinator creates a coordinator in the Idle state.
func NewSessionCoordinator(deps Dependencies) *SessionCoordinator {
	return &SessionCoordinator{deps: deps, stats: widget.NewStatistics()}
}

// Fire takes the in-flight guard and runs the trigger on its own goroutine.
// It returns false when the trigger was dropped or ignored.
func (c *SessionCoordinator) Fire(ctx context.Context, trig Trigger) bool {
	if outcome, ok := c.enter(trig); !ok {
		slog.Debug("SessionCoordinator.Fire: trigger not started", "trigger", trig.Kind, "outcome", outcome)
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, trig)
	}()
	return true
}

// OnTrigger runs a trigger on the calling goroutine.
func (c *SessionCoordinator) OnTrigger(ctx context.Context, trig Trigger) Outcome {
	if outcome, ok := c.enter(trig); !ok {
		return outcome
	}
	return c.run(ctx, trig)
}

// Wait blocks until every trigger started by Fire has returned.
func (c *SessionCoordinator) Wait() {
	c.wg.Wait()
}

func (c *SessionCoordinator) enter(trig Trigger) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.processing {
		slog.Info("SessionCoordinator.enter: already processing parameters, skipping", "trigger", trig.Kind)
		return OutcomeDropped, false
	}
	if trig.Kind == TriggerHistory && c.widgetInitialized {
		slog.Debug("SessionCoordinator.enter: widget ready, ignoring history trigger")
		return OutcomeIgnored, false
	}
	c.processing = true
	return "", true
}

func (c *SessionCoordinator) leave() {
	c.mu.Lock()
	c.processing = false
	c.mu.Unlock()
}

func (c *SessionCoordinator) run(ctx context.Context, trig Trigger) Outcome {
	defer c.leave()

	set, provenance := c.resolveParameters(ctx, trig.Address)

	sc, ok := NewSessionContext(set, provenance)
	if !ok {
		slog.Debug("SessionCoordinator.run: no user id in parameters, nothing to provision", "trigger", trig.Kind, "keys", set.Keys())
		return OutcomeNoUser
	}
	c.mu.Lock()
	c.session = &sc
	c.mu.Unlock()
	slog.Info("SessionCoordinator.run: parameters processed",
		"user_id", sc.UserID, "flow", sc.Flow, "deep_link", sc.Flow.IsDeepLink(),
		"module_id", sc.ModuleID, "skill_id", sc.SkillID, "locale", sc.Locale, "provenance", sc.Provenance)

	result, err := c.deps.Provisioner.Provision(ctx, sc.UserID, set.Value(models.ParamLocale))
	if err != nil {
		var serr *provision.ServiceError
		var nerr *provision.NetworkError
		switch {
		case errors.As(err, &serr):
			slog.Error("SessionCoordinator.run: provisioning rejected", "status", serr.Status, "error", err, "user_id", sc.UserID)
		case errors.As(err, &nerr):
			slog.Error("SessionCoordinator.run: provisioning unreachable", "error", err, "user_id", sc.UserID)
		default:
			slog.Error("SessionCoordinator.run: provisioning failed", "error", err, "user_id", sc.UserID)
		}
		return OutcomeProvisioningFailed
	}
	if result.Token == "" {
		slog.Warn("SessionCoordinator.run: provisioning response carried no token", "user_id", sc.UserID)
		return OutcomeProvisioningFailed
	}

	withToken := sc.WithToken(result.Token)
	c.mu.Lock()
	c.token = result.Token
	c.session = &withToken
	c.mu.Unlock()

	return c.initializeWidget(ctx, result.Token, sc.ModuleID, sc.SkillID)
}

// resolveParameters reads the entry parameters, falling back to the stored
// snapshot when the address has none. Fresh parameters are persisted.
func (c *SessionCoordinator) resolveParameters(ctx context.Context, address string) (*models.ParameterSet, models.Provenance) {
	set := params.ReadEntryParameters(address)
	if c.deps.Snapshots == nil {
		return set, models.ProvenanceFresh
	}
	if set.IsEmpty() {
		restored, err := c.deps.Snapshots.Restore(ctx)
		if err != nil {
			slog.Error("SessionCoordinator.resolveParameters: stored parameters unavailable", "error", err)
			return set, models.ProvenanceFresh
		}
		if !restored.IsEmpty() {
			slog.Info("SessionCoordinator.resolveParameters: loaded parameters from storage", "keys", restored.Keys())
			return restored, models.ProvenanceRestored
		}
		return set, models.ProvenanceFresh
	}
	if err := c.deps.Snapshots.Persist(ctx, set); err != nil {
		slog.Error("SessionCoordinator.resolveParameters: failed to persist parameters", "error", err)
	}
	return set, models.ProvenanceFresh
}

// HandleEvent delivers a widget event to the relay attached to the page's widget.
func (c *SessionCoordinator) HandleEvent(ctx context.Context, ev widget.Event) {
	h, ok := c.deps.Widgets.Widget()
	if !ok {
		slog.Debug("SessionCoordinator.HandleEvent: no widget on page", "kind", ev.Kind)
		return
	}
	h.Deliver(ctx, ev)
}

// ClearParameters removes the stored snapshot and sends the page to address
// without its query string.
func (c *SessionCoordinator) ClearParameters(ctx context.Context, address string) error {
	if c.deps.Snapshots == nil {
		return nil
	}
	return c.deps.Snapshots.Clear(ctx, address)
}

// Reset force-clears both flags, the token, the widget guards and all
// message statistics. It does not cancel an in-flight trigger, which may
// still complete and mark the session ready afterwards.
func (c *SessionCoordinator) Reset(ctx context.Context) {
	slog.Info("SessionCoordinator.Reset: resetting initialization state")
	c.mu.Lock()
	c.widgetInitialized = false
	c.processing = false
	c.token = ""
	c.session = nil
	c.mu.Unlock()

	if h, ok := c.deps.Widgets.Widget(); ok {
		if err := h.Reset(ctx); err != nil {
			slog.Error("SessionCoordinator.Reset: failed to clear widget marker", "error", err)
		}
	}
	c.stats.Reset()
}

// Stats returns a copy of the message statistics.
func (c *SessionCoordinator) Stats() models.MessageStatistics {
	return c.stats.Snapshot()
}

// State returns the current observable state.
func (c *SessionCoordinator) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deriveState(c.processing, c.widgetInitialized, c.token)
}

// Context returns a copy of the current session context, or nil before a
// trigger with a user id has been classified.
func (c *SessionCoordinator) Context() *models.SessionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

// Snapshot returns the debug view of this coordinator.
func (c *SessionCoordinator) Snapshot(sessionID string) models.SessionSnapshot {
	c.mu.Lock()
	snap := models.SessionSnapshot{
		SessionID:         sessionID,
		State:             deriveState(c.processing, c.widgetInitialized, c.token),
		WidgetInitialized: c.widgetInitialized,
		InFlight:          c.processing,
	}
	if c.session != nil {
		cp := *c.session
		snap.Context = &cp
	}
	c.mu.Unlock()
	snap.Stats = c.stats.Snapshot()
	return snap
}
