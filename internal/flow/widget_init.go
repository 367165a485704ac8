package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

// InitFailureMessage is the notification shown when the widget rejects initialization.
const InitFailureMessage = "Failed to initialize the widget. Check the logs for details."

// initializeWidget dispatches at most one initialize call. Guards are
// checked in order: session already initialized, widget missing, widget
// marker already set, initialize already dispatched to this handle.
func (c *SessionCoordinator) initializeWidget(ctx context.Context, token, moduleID, skillID string) Outcome {
	c.mu.Lock()
	done := c.widgetInitialized
	c.mu.Unlock()
	if done {
		slog.Info("SessionCoordinator.initializeWidget: widget already initialized, skipping")
		return OutcomeWidgetSkipped
	}

	h, ok := c.deps.Widgets.Widget()
	if !ok || h == nil {
		slog.Error("SessionCoordinator.initializeWidget: error", "error", widget.ErrWidgetNotFound)
		return OutcomeWidgetSkipped
	}
	if h.Initialized() {
		slog.Info("SessionCoordinator.initializeWidget: widget reports itself initialized, skipping")
		c.setWidgetInitialized()
		return OutcomeWidgetSkipped
	}
	if !h.BeginInitialization() {
		slog.Warn("SessionCoordinator.initializeWidget: skipping duplicate call", "error", widget.ErrAlreadyInitialized)
		return OutcomeWidgetSkipped
	}

	cfg, err := widget.BuildConfig(token, moduleID, skillID)
	if err != nil {
		c.reportInitFailure(ctx, err)
		return OutcomeWidgetFailed
	}
	slog.Info("SessionCoordinator.initializeWidget: calling initialize", "config", cfg.LogValue())

	if err := h.Initialize(ctx, cfg); err != nil {
		var ierr *widget.InitError
		if !errors.As(err, &ierr) {
			err = &widget.InitError{Err: err}
		}
		c.reportInitFailure(ctx, err)
		return OutcomeWidgetFailed
	}

	c.setWidgetInitialized()
	if err := h.MarkInitialized(ctx); err != nil {
		slog.Error("SessionCoordinator.initializeWidget: failed to set widget marker", "error", err)
	}
	slog.Info("SessionCoordinator.initializeWidget: initialize completed successfully")

	if h.AttachRelay(widget.NewRelay(c.stats, c.deps.Opener, c.deps.Notifier)) {
		slog.Debug("SessionCoordinator.initializeWidget: event relay attached")
	}
	return OutcomeReady
}

func (c *SessionCoordinator) setWidgetInitialized() {
	c.mu.Lock()
	c.widgetInitialized = true
	c.mu.Unlock()
}

func (c *SessionCoordinator) reportInitFailure(ctx context.Context, err error) {
	slog.Error("SessionCoordinator.initializeWidget: failed to initialize widget", "error", err)
	if c.deps.Notifier == nil {
		return
	}
	if nerr := c.deps.Notifier.Notify(ctx, InitFailureMessage); nerr != nil {
		slog.Error("SessionCoordinator.reportInitFailure: notification failed", "error", nerr)
	}
}
