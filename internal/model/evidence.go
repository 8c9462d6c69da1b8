package model

// BidirectionalLinks is the invariant-bearing core of the evidence graph.
// For every frame f and event e: e ∈ FrameToEvents[f] iff f ∈ EventToFrames[e],
// and every event listed under SummaryToEvents maps back to the same summary
// id in EventToSummary.
type BidirectionalLinks struct {
	FrameToEvents   map[string][]string `json:"frame_to_events"`
	EventToFrames   map[string][]string `json:"event_to_frames"`
	SummaryToEvents map[string][]string `json:"summary_to_events"`
	EventToSummary  map[string]string   `json:"event_to_summary"`
}

// FrameConfidence holds the per-frame reliability signals, each in [0,1].
type FrameConfidence struct {
	OCRConfidence     float64 `json:"ocr_confidence"`
	ImageQuality      float64 `json:"image_quality"`
	TemporalStability float64 `json:"temporal_stability"`
	ContextRelevance  float64 `json:"context_relevance"`
}

// Overall collapses the four frame signals into a single value.
func (f FrameConfidence) Overall() float64 {
	return (f.OCRConfidence + f.ImageQuality + f.TemporalStability + f.ContextRelevance) / 4
}

// EventConfidence holds the per-event reliability signals.
type EventConfidence struct {
	RawConfidence       float64 `json:"raw_confidence"`
	EvidenceFrameCount  int     `json:"evidence_frame_count"`
	TemporalConsistency float64 `json:"temporal_consistency"`
	SpatialConsistency  float64 `json:"spatial_consistency"`
}

// Overall collapses the event signals into a single value.
func (e EventConfidence) Overall() float64 {
	return (e.RawConfidence + e.TemporalConsistency + e.SpatialConsistency) / 3
}

// SummaryConfidence is the aggregate confidence for a whole summary.
type SummaryConfidence struct {
	AggregatedConfidence float64 `json:"aggregated_confidence"`
}

// ConfidenceFactor is one named, signed contribution to the aggregate
// score. Impact is in [-1, 1].
type ConfidenceFactor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"`
}

// ConfidencePropagation is the layered confidence computation from frame
// quality up through event reliability to the aggregate summary score.
type ConfidencePropagation struct {
	FrameConfidences  map[string]FrameConfidence `json:"frame_confidences"`
	EventConfidences  map[string]EventConfidence `json:"event_confidences"`
	SummaryConfidence SummaryConfidence          `json:"summary_confidence"`
	ConfidenceFactors []ConfidenceFactor         `json:"confidence_factors"`
}

// EvidenceReference is the full evidence graph for one summary.
type EvidenceReference struct {
	SummaryID             string                `json:"summary_id"`
	SessionID             string                `json:"session_id"`
	DirectEvidenceFrames  []string              `json:"direct_evidence_frames"`
	CorrelatedFrames      []CorrelatedFrame     `json:"correlated_frames,omitempty"`
	EventEvidenceMap      map[string][]string   `json:"event_evidence_map"`
	BidirectionalLinks    BidirectionalLinks    `json:"bidirectional_links"`
	ConfidencePropagation ConfidencePropagation `json:"confidence_propagation"`
}

// TraceLevel identifies the graph depth of a trace step.
type TraceLevel string

const (
	TraceLevelSummary TraceLevel = "summary"
	TraceLevelEvent   TraceLevel = "event"
	TraceLevelFrame   TraceLevel = "frame"
)

// EvidenceType identifies the kind of evidence a trace step points at.
type EvidenceType string

const (
	EvidenceTypeNarrative   EvidenceType = "narrative"
	EvidenceTypeInteraction EvidenceType = "interaction"
	EvidenceTypeVisual      EvidenceType = "visual"
)

// TraceStep is one node visit in an evidence trace.
type TraceStep struct {
	Level        TraceLevel   `json:"level"`
	EvidenceType EvidenceType `json:"evidence_type"`
	ReferenceID  string       `json:"reference_id"`
	Confidence   float64      `json:"confidence"`
}

// EvidenceTrace is the ordered reconstruction of the graph path from a
// summary down to its supporting frames.
type EvidenceTrace struct {
	SummaryID       string      `json:"summary_id"`
	TraceComplete   bool        `json:"trace_complete"`
	TracePath       []TraceStep `json:"trace_path"`
	TotalConfidence float64     `json:"total_confidence"`
}
