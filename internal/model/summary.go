package model

// ActivitySummary is a human-readable account of one session. Narrative and
// Outcomes are produced by the external rendering stage and treated as
// opaque here; KeyEvents must be a non-empty subset of Session.Events.
type ActivitySummary struct {
	ID         string          `json:"id"`
	Session    ActivitySession `json:"session"`
	Narrative  string          `json:"narrative"`
	KeyEvents  []ActivityEvent `json:"key_events"`
	Outcomes   []string        `json:"outcomes,omitempty"`
	Context    TemporalContext `json:"context"`
	Confidence float64         `json:"confidence"`
}
