package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// operatorAlertTimeout bounds one background operator copy.
const operatorAlertTimeout = 30 * time.Second

// OperatorAlerts copies user-facing notifications to an operator.
type OperatorAlerts struct {
	recipient string
	services  []Service
}

// NewOperatorAlerts sends to recipient over every given service. With no
// recipient or no services, Send is a no-op.
func NewOperatorAlerts(recipient string, services ...Service) *OperatorAlerts {
	return &OperatorAlerts{recipient: recipient, services: services}
}

// Enabled reports whether any alert would be sent.
func (a *OperatorAlerts) Enabled() bool {
	return a != nil && a.recipient != "" && len(a.services) > 0
}

// Send delivers "[session <id>] message" over every service. Failures of
// individual services are joined; one failing service does not stop the rest.
func (a *OperatorAlerts) Send(ctx context.Context, sessionID, message string) error {
	if !a.Enabled() {
		return nil
	}
	body := fmt.Sprintf("[session %s] %s", sessionID, message)
	var errs []error
	for _, svc := range a.services {
		to, err := svc.ValidateAndCanonicalizeRecipient(a.recipient)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			continue
		}
		if err := svc.SendMessage(ctx, to, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
			continue
		}
		slog.Debug("OperatorAlerts.Send: alert delivered", "service", svc.Name(), "session_id", sessionID)
	}
	return errors.Join(errs...)
}

// PageAlerter shows a blocking alert on the page.
type PageAlerter interface {
	Notify(ctx context.Context, message string) error
}

// Notifier shows a notification on the page and copies it to the operator.
type Notifier struct {
	sessionID string
	page      PageAlerter
	alerts    *OperatorAlerts
	wg        sync.WaitGroup
}

// NewNotifier binds a page and the operator alerts for one session. Either
// may be nil.
func NewNotifier(sessionID string, page PageAlerter, alerts *OperatorAlerts) *Notifier {
	return &Notifier{sessionID: sessionID, page: page, alerts: alerts}
}

// Notify shows message on the page and copies it to the operator in the
// background. Only the page error is returned; operator failures are logged.
// The copy outlives ctx's cancellation, bounded by its own timeout.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	var pageErr error
	if n.page != nil {
		pageErr = n.page.Notify(ctx, message)
	}
	if n.alerts.Enabled() {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operatorAlertTimeout)
			defer cancel()
			if err := n.alerts.Send(actx, n.sessionID, message); err != nil {
				slog.Error("Notifier.Notify: operator alert failed", "error", err, "session_id", n.sessionID)
			}
		}()
	}
	return pageErr
}

// Wait blocks until every operator copy started by Notify has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
