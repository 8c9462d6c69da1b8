package model

import "time"

// AnalysisStatus represents the current state of an analysis run.
type AnalysisStatus string

const (
	AnalysisStatusQueued          AnalysisStatus = "queued"
	AnalysisStatusSegmenting      AnalysisStatus = "segmenting"
	AnalysisStatusContextualizing AnalysisStatus = "contextualizing"
	AnalysisStatusCorrelating     AnalysisStatus = "correlating"
	AnalysisStatusScoring         AnalysisStatus = "scoring"
	AnalysisStatusComplete        AnalysisStatus = "complete"
	AnalysisStatusFailed          AnalysisStatus = "failed"
)

// AnalysisInput bundles everything one analysis call consumes. All inputs
// are caller-owned and read-only to the engine.
type AnalysisInput struct {
	Events    []ActivityEvent `json:"events"`
	Frames    []FrameMetadata `json:"frames"`
	Spans     []Span          `json:"spans,omitempty"`
	TimeRange TimeRange       `json:"time_range"`
}

// Analysis is the persisted record of one analysis run.
type Analysis struct {
	ID        string          `json:"id"`
	Status    AnalysisStatus  `json:"status"`
	Params    AnalysisParams  `json:"params"`
	Result    *AnalysisResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AnalysisParams records the input sizes and window of a run, for listing
// and observability; the raw inputs themselves are not persisted.
type AnalysisParams struct {
	EventCount int       `json:"event_count"`
	FrameCount int       `json:"frame_count"`
	SpanCount  int       `json:"span_count"`
	TimeRange  TimeRange `json:"time_range"`
}

// StageStatus represents the state of one pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AnalysisResult is the final output of one analysis run.
type AnalysisResult struct {
	AnalysisID string            `json:"analysis_id"`
	Sessions   []ActivitySession `json:"sessions"`
	Summaries  []StoredSummary   `json:"summaries"`
	Stages     []StageResult     `json:"stages"`
}

// StoredSummary is the persistence envelope for one summary and its
// derived evidence artifacts.
type StoredSummary struct {
	Summary   ActivitySummary   `json:"summary"`
	Reference EvidenceReference `json:"reference"`
	Trace     EvidenceTrace     `json:"trace"`
}
