// Package events implements the append-only JSONL event log (C1): atomic
// append, forgiving forward/reverse read, and the set-algebra query layer
// the rest of macf builds state projections on top of.
package events

import (
	"encoding/json"

	"github.com/cversek/macf/internal/breadcrumb"
)

// Record is one line of the event log.
type Record struct {
	Timestamp  float64         `json:"timestamp"`
	Event      string          `json:"event"`
	Breadcrumb string          `json:"breadcrumb"`
	Data       json.RawMessage `json:"data,omitempty"`
	HookInput  json.RawMessage `json:"hook_input,omitempty"`
}

// ParsedBreadcrumb parses the record's breadcrumb string, if any.
func (r Record) ParsedBreadcrumb() (breadcrumb.Breadcrumb, bool) {
	if r.Breadcrumb == "" {
		return breadcrumb.Breadcrumb{}, false
	}
	return breadcrumb.Parse(r.Breadcrumb)
}

// DataField decodes a single named field out of Data into dst. Returns
// false (never an error) when the field is absent or of the wrong shape —
// callers are expected to degrade to a zero value, per the telemetry
// layer's "never crash the caller" contract.
func (r Record) DataField(name string, dst any) bool {
	if len(r.Data) == 0 {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return false
	}
	raw, ok := m[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// DataString is a convenience wrapper around DataField for string fields.
func (r Record) DataString(name string) string {
	var s string
	r.DataField(name, &s)
	return s
}

// canonicalKey renders a record into a sorted-key JSON string, used by
// SetOperation to compare records for set membership regardless of map
// key ordering produced by different encodings of "the same" event.
func canonicalKey(r Record) string {
	m := map[string]any{
		"timestamp":  r.Timestamp,
		"event":      r.Event,
		"breadcrumb": r.Breadcrumb,
	}
	if len(r.Data) > 0 {
		var v any
		if json.Unmarshal(r.Data, &v) == nil {
			m["data"] = v
		}
	}
	// encoding/json sorts map[string]any keys on marshal, giving us a
	// stable canonical form for free.
	b, _ := json.Marshal(m)
	return string(b)
}
