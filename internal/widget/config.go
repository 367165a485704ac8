// Package widget models the embedded widget: its handle and duplicate-dispatch
// guards, the initialize configuration, and the relay for its event stream.
package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// WidgetTypeDeepLink is the widget type sent for module and skill deep links.
const WidgetTypeDeepLink = "deep_link"

// tokenLogPrefix is how much of the auth token may appear in logs.
const tokenLogPrefix = 20

var (
	// ErrWidgetNotFound is returned when the page has no widget element.
	ErrWidgetNotFound = errors.New("widget not found")
	// ErrAlreadyInitialized is returned when an initialize call was already
	// dispatched to the same handle.
	ErrAlreadyInitialized = errors.New("initialization already sent to this widget")
	// ErrInvalidID is wrapped by InitError when a deep-link id has no leading digits.
	ErrInvalidID = errors.New("deep-link id is not an integer")
)

// InitError reports a rejected or unbuildable initialize call.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "widget initialization failed: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// Config is the argument of the widget's initialize operation.
//
// With a module id the config carries module_id and no skill_id; with only a
// skill id it carries skill_id; with neither, widget_type and module_id are
// both an explicit null.
type Config struct {
	UserAuthToken string
	WidgetType    *string
	ModuleID      *int
	SkillID       *int
}

// BuildConfig assembles the initialize configuration. moduleID takes
// precedence over skillID; both are coerced to integers from their leading
// digits, so "42abc" becomes 42.
//
// An id with no leading digits is an *InitError wrapping ErrInvalidID, and
// the widget is not initialized. Browser parseInt would instead yield NaN and
// initialize a deep link with a null id; a deep link to nothing is reported
// here rather than sent to the widget.
func BuildConfig(token, moduleID, skillID string) (Config, error) {
	cfg := Config{UserAuthToken: token}
	switch {
	case moduleID != "":
		id, err := coerceID(moduleID)
		if err != nil {
			return Config{}, &InitError{Err: fmt.Errorf("module id %q: %w", moduleID, err)}
		}
		cfg.WidgetType = stringPtr(WidgetTypeDeepLink)
		cfg.ModuleID = &id
	case skillID != "":
		id, err := coerceID(skillID)
		if err != nil {
			return Config{}, &InitError{Err: fmt.Errorf("skill id %q: %w", skillID, err)}
		}
		cfg.WidgetType = stringPtr(WidgetTypeDeepLink)
		cfg.SkillID = &id
	}
	return cfg, nil
}

// MarshalJSON writes the fields in a stable order and emits the explicit
// nulls of the full-experience configuration.
func (c Config) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, interface{}]()
	om.Set("user_auth_token", c.UserAuthToken)
	if c.WidgetType != nil {
		om.Set("widget_type", *c.WidgetType)
	} else {
		om.Set("widget_type", nil)
	}
	switch {
	case c.ModuleID != nil:
		om.Set("module_id", *c.ModuleID)
	case c.SkillID != nil:
		om.Set("skill_id", *c.SkillID)
	default:
		om.Set("module_id", nil)
	}
	return json.Marshal(om)
}

// LogValue is a loggable view of the config with the token truncated.
func (c Config) LogValue() map[string]interface{} {
	token := c.UserAuthToken
	if len(token) > tokenLogPrefix {
		token = token[:tokenLogPrefix] + "..."
	}
	out := map[string]interface{}{"user_auth_token": token, "widget_type": nil}
	if c.WidgetType != nil {
		out["widget_type"] = *c.WidgetType
	}
	if c.ModuleID != nil {
		out["module_id"] = *c.ModuleID
	}
	if c.SkillID != nil {
		out["skill_id"] = *c.SkillID
	}
	return out
}

// coerceID reads an optionally signed run of leading decimal digits,
// skipping leading whitespace.
func coerceID(s string) (int, error) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, ErrInvalidID
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return n, nil
}

func stringPtr(s string) *string { return &s }
