// Package page bridges a browser page to a SessionCoordinator over a
// WebSocket. The page reports lifecycle triggers, widget state and widget
// events; the service answers with commands the page executes.
//
// The page connects to /page/ws?client=<id>, where id is generated once per
// browser and kept in the page's own storage. Parameter snapshots are scoped
// to that id, so a reload resumes this browser's session and no other.
package page

import (
	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

// Inbound message types (page to service).
const (
	TypeWidgetState      = "widget_state"
	TypeTrigger          = "trigger"
	TypeInitializeResult = "initialize_result"
	TypeWidgetEvent      = "widget_event"
	TypeClearParams      = "clear_params"
)

// Outbound message types (service to page).
const (
	TypeSession          = "session"
	TypeInitialize       = "initialize"
	TypeMarkInitialized  = "mark_initialized"
	TypeClearInitialized = "clear_initialized"
	TypeOpenURL          = "open_url"
	TypeAlert            = "alert"
	TypeNavigate         = "navigate"
)

// Message is the single envelope used in both directions. Only the fields
// of the given Type are set.
type Message struct {
	Type string `json:"type"`

	// widget_state
	Present     *bool `json:"present,omitempty"`
	Initialized *bool `json:"initialized,omitempty"`

	// trigger, clear_params, open_url, navigate
	Trigger string `json:"trigger,omitempty"`
	URL     string `json:"url,omitempty"`

	// initialize, initialize_result
	ID     string         `json:"id,omitempty"`
	Config *widget.Config `json:"config,omitempty"`
	OK     *bool          `json:"ok,omitempty"`
	Error  string         `json:"error,omitempty"`

	// widget_event
	Kind   string                 `json:"kind,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`

	// session, alert
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}
