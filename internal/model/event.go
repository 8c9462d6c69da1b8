package model

import "time"

// EventType classifies a raw interaction event.
type EventType string

const (
	EventTypeFieldChange    EventType = "field_change"
	EventTypeClick          EventType = "click"
	EventTypeNavigation     EventType = "navigation"
	EventTypeFormSubmission EventType = "form_submission"
	EventTypeDataEntry      EventType = "data_entry"
	EventTypeScroll         EventType = "scroll"
	EventTypeFocus          EventType = "focus"
)

// MetadataKeyAppName is the event metadata key carrying the source application.
const MetadataKeyAppName = "app_name"

// ActivityEvent is a single low-level interaction observation (field edit,
// click, navigation, form submission). Events are immutable once created and
// owned by the caller; the engine never mutates them.
type ActivityEvent struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Type           EventType         `json:"type"`
	Target         string            `json:"target"`
	ValueBefore    string            `json:"value_before,omitempty"`
	ValueAfter     string            `json:"value_after,omitempty"`
	Confidence     float64           `json:"confidence"`
	EvidenceFrames []string          `json:"evidence_frames,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// AppName returns the event's source application name, or "" if unknown.
func (e ActivityEvent) AppName() string {
	return e.Metadata[MetadataKeyAppName]
}

// TimeRange bounds a query or analysis window. End is inclusive.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range (inclusive on both ends).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
