// Package models defines the entry parameter set consumed by the session flow.
package models

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Distinguished entry parameter keys.
const (
	ParamUserID   = "id"
	ParamModuleID = "deep_link_module_id"
	ParamSkillID  = "skill_id"
	ParamLocale   = "locale"
)

// DefaultLocale is used in a SessionContext when the entry parameters carry none.
const DefaultLocale = "en_US"

// ParamSnapshotKey is the storage key of the persisted parameter snapshot.
const ParamSnapshotKey = "launchpipeEntryParams"

// ParameterSet is an ordered mapping of entry parameter names to values.
// Setting an existing key replaces its value but keeps its original position,
// so iteration follows the order of first occurrence.
type ParameterSet struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewParameterSet returns an empty set.
func NewParameterSet() *ParameterSet {
	return &ParameterSet{m: orderedmap.New[string, string]()}
}

// Set stores value under key; the last write wins.
func (p *ParameterSet) Set(key, value string) {
	if p.m == nil {
		p.m = orderedmap.New[string, string]()
	}
	p.m.Set(key, value)
}

// Get returns the value under key.
func (p *ParameterSet) Get(key string) (string, bool) {
	if p == nil || p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// Value returns the value under key or "" when absent.
func (p *ParameterSet) Value(key string) string {
	v, _ := p.Get(key)
	return v
}

// Len returns the number of keys.
func (p *ParameterSet) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Len()
}

// IsEmpty reports whether the set has no keys.
func (p *ParameterSet) IsEmpty() bool {
	return p.Len() == 0
}

// Keys returns the keys in iteration order.
func (p *ParameterSet) Keys() []string {
	keys := make([]string, 0, p.Len())
	if p.Len() == 0 {
		return keys
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns an independent copy.
func (p *ParameterSet) Clone() *ParameterSet {
	out := NewParameterSet()
	if p.Len() == 0 {
		return out
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

// MarshalJSON encodes the set as a JSON object in iteration order.
func (p *ParameterSet) MarshalJSON() ([]byte, error) {
	if p == nil || p.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.m)
}

// UnmarshalJSON decodes a JSON object of string values, keeping key order.
func (p *ParameterSet) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	p.m = m
	return nil
}
