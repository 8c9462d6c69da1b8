package model

import "time"

// SessionType classifies the dominant activity within a session.
type SessionType string

const (
	SessionTypeFormFilling SessionType = "form_filling"
	SessionTypeDataEntry   SessionType = "data_entry"
	SessionTypeNavigation  SessionType = "navigation"
	SessionTypeDevelopment SessionType = "development"
	SessionTypeMixed       SessionType = "mixed"
)

// ActivitySession is a time-bounded, application-coherent group of events.
// Created only by the segmenter; immutable thereafter. Events is non-empty
// and sorted by timestamp, and EndTime >= StartTime.
type ActivitySession struct {
	ID                 string          `json:"id"`
	StartTime          time.Time       `json:"start_time"`
	EndTime            time.Time       `json:"end_time"`
	Events             []ActivityEvent `json:"events"`
	PrimaryApplication string          `json:"primary_application"`
	SessionType        SessionType     `json:"session_type"`
}

// Duration returns the session's wall-clock extent.
func (s ActivitySession) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Span is an externally owned workflow record from the append-only span
// store. The engine never creates or mutates spans.
type Span struct {
	Kind            string    `json:"kind" yaml:"kind"`
	StartTime       time.Time `json:"start_time" yaml:"start_time"`
	EndTime         time.Time `json:"end_time" yaml:"end_time"`
	Title           string    `json:"title" yaml:"title"`
	SummaryMarkdown string    `json:"summary_markdown,omitempty" yaml:"summary_markdown,omitempty"`
	Tags            []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// WorkflowContinuity measures whether a session belongs to a larger
// multi-span activity sequence.
type WorkflowContinuity struct {
	IsPartOfLargerWorkflow bool     `json:"is_part_of_larger_workflow"`
	WorkflowPhase          string   `json:"workflow_phase,omitempty"`
	ContinuityScore        float64  `json:"continuity_score"`
	RelatedActivities      []string `json:"related_activities,omitempty"`
}

// TemporalContext captures the workflow context surrounding a session.
// Preceding and following spans are ordered by proximity to the session.
type TemporalContext struct {
	PrecedingSpans     []Span             `json:"preceding_spans,omitempty"`
	FollowingSpans     []Span             `json:"following_spans,omitempty"`
	RelatedSessions    []string           `json:"related_sessions,omitempty"`
	WorkflowContinuity WorkflowContinuity `json:"workflow_continuity"`
}
