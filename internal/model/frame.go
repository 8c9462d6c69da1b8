package model

import "time"

// FrameMetadata describes a captured, OCR'd screen frame. Produced by the
// external capture pipeline; read-only input to the engine. OCRConfidence
// and ImageQuality are optional — nil means the capture layer did not
// report them.
type FrameMetadata struct {
	FrameID         string    `json:"frame_id"`
	Timestamp       time.Time `json:"timestamp"`
	ApplicationName string    `json:"application_name"`
	WindowTitle     string    `json:"window_title"`
	OCRConfidence   *float64  `json:"ocr_confidence,omitempty"`
	ImageQuality    *float64  `json:"image_quality,omitempty"`
}

// CorrelationReason names a signal that contributed to a frame's
// correlation score. The vocabulary is closed.
type CorrelationReason string

const (
	ReasonTemporalProximity  CorrelationReason = "temporal_proximity_to_events"
	ReasonApplicationContext CorrelationReason = "application_context_match"
	ReasonSceneTransition    CorrelationReason = "significant_scene_transition"
	ReasonWorkflowContinuity CorrelationReason = "workflow_continuity"
)

// AllCorrelationReasons returns the closed reason vocabulary.
func AllCorrelationReasons() []CorrelationReason {
	return []CorrelationReason{
		ReasonTemporalProximity,
		ReasonApplicationContext,
		ReasonSceneTransition,
		ReasonWorkflowContinuity,
	}
}

// CorrelatedFrame is a frame linked to a session by the evidence correlator
// beyond the frames events cite directly.
type CorrelatedFrame struct {
	FrameID            string              `json:"frame_id"`
	Timestamp          time.Time           `json:"timestamp"`
	CorrelationScore   float64             `json:"correlation_score"`
	CorrelationReasons []CorrelationReason `json:"correlation_reasons"`
	ApplicationName    string              `json:"application_name"`
	WindowTitle        string              `json:"window_title"`
}
