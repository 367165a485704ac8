// Package flow turns page-entry parameters into exactly one provisioning call
// and exactly one widget initialization per session.
package flow

import (
	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// TriggerKind names the page-lifecycle event that invoked the coordinator.
type TriggerKind string

const (
	// TriggerLoad is the initial page load.
	TriggerLoad TriggerKind = "load"
	// TriggerHistory is a history navigation (back/forward).
	TriggerHistory TriggerKind = "popstate"
)

// Trigger is one lifecycle event with the page address at the time it fired.
type Trigger struct {
	Kind    TriggerKind `json:"trigger"`
	Address string      `json:"url"`
}

// Outcome reports how a trigger ended.
type Outcome string

const (
	// OutcomeDropped means another trigger was in flight.
	OutcomeDropped Outcome = "dropped"
	// OutcomeIgnored means a history trigger arrived after the widget was ready.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeNoUser means the parameters carried no user id.
	OutcomeNoUser Outcome = "no_user"
	// OutcomeProvisioningFailed means the provisioning call failed or returned no token.
	OutcomeProvisioningFailed Outcome = "provisioning_failed"
	// OutcomeWidgetSkipped means a guard stopped widget initialization.
	OutcomeWidgetSkipped Outcome = "widget_skipped"
	// OutcomeWidgetFailed means the widget rejected initialization.
	OutcomeWidgetFailed Outcome = "widget_failed"
	// OutcomeReady means the widget was initialized by this trigger.
	OutcomeReady Outcome = "ready"
)

// deriveState maps the coordinator's flags onto its observable state.
func deriveState(processing, widgetInitialized bool, token string) models.SessionState {
	switch {
	case processing:
		return models.SessionStateProcessing
	case widgetInitialized:
		return models.SessionStateReady
	case token != "":
		return models.SessionStateProvisioned
	default:
		return models.SessionStateIdle
	}
}
