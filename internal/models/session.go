// Package models defines the session-flow structures shared by the flow, page and api modules.
package models

// FlowDescriptor names the experience a session lands in.
type FlowDescriptor string

const (
	// FlowModuleDeepLink lands directly inside a module.
	FlowModuleDeepLink FlowDescriptor = "module_deep_link"
	// FlowSkillDeepLink lands directly inside a skill.
	FlowSkillDeepLink FlowDescriptor = "skill_deep_link"
	// FlowFullExperience is the default, non deep-linked experience.
	FlowFullExperience FlowDescriptor = "full_experience"
)

// IsDeepLink reports whether the flow targets a module or skill.
func (f FlowDescriptor) IsDeepLink() bool {
	return f == FlowModuleDeepLink || f == FlowSkillDeepLink
}

// Provenance records where a session's parameters came from.
type Provenance string

const (
	// ProvenanceFresh means the parameters were read from the entry address.
	ProvenanceFresh Provenance = "fresh"
	// ProvenanceRestored means the parameters were restored from the persisted snapshot.
	ProvenanceRestored Provenance = "restored"
)

// SessionContext is the classified view of one trigger's parameters.
// It is built once and never mutated; a later trigger replaces it.
type SessionContext struct {
	UserID     string         `json:"user_id"`
	ModuleID   string         `json:"deep_link_module_id,omitempty"`
	SkillID    string         `json:"skill_id,omitempty"`
	Locale     string         `json:"locale"`
	Flow       FlowDescriptor `json:"flow"`
	Params     *ParameterSet  `json:"params"`
	Provenance Provenance     `json:"provenance"`
	Token      string         `json:"-"`
}

// WithToken returns a copy of the context carrying the provisioning token.
func (c SessionContext) WithToken(token string) SessionContext {
	c.Token = token
	return c
}

// SessionState is the coordinator's externally observable state.
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateProcessing  SessionState = "processing"
	SessionStateProvisioned SessionState = "provisioned"
	SessionStateReady       SessionState = "ready"
)

// MessageStatistics is a read-only snapshot of widget message counters.
type MessageStatistics struct {
	Total              int            `json:"total"`
	ByType             map[string]int `json:"by_type"`
	AuthTokenProcessed int            `json:"auth_token_processed"`
}

// SessionSnapshot is the debug view of one page session.
type SessionSnapshot struct {
	SessionID         string            `json:"session_id"`
	State             SessionState      `json:"state"`
	WidgetInitialized bool              `json:"widget_initialized"`
	InFlight          bool              `json:"in_flight"`
	Context           *SessionContext   `json:"context,omitempty"`
	Stats             MessageStatistics `json:"stats"`
}
