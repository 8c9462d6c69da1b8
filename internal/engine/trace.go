package engine

import (
	"go.uber.org/zap"

	"github.com/sightglass/evidence-cli/internal/model"
)

// TraceEvidence reconstructs the ordered, auditable path from a summary
// down to its supporting frames. A summary id that does not match the
// reference is a normal outcome, reported as an incomplete trace with an
// empty path — never an error.
func TraceEvidence(summaryID string, ref model.EvidenceReference) model.EvidenceTrace {
	if ref.SummaryID != summaryID {
		zap.L().Debug("trace: summary id mismatch",
			zap.String("requested", summaryID),
			zap.String("reference", ref.SummaryID),
		)
		return model.EvidenceTrace{SummaryID: summaryID}
	}

	prop := ref.ConfidencePropagation

	path := []model.TraceStep{{
		Level:        model.TraceLevelSummary,
		EvidenceType: model.EvidenceTypeNarrative,
		ReferenceID:  summaryID,
		Confidence:   prop.SummaryConfidence.AggregatedConfidence,
	}}

	complete := true
	for _, eventID := range ref.BidirectionalLinks.SummaryToEvents[summaryID] {
		ec := prop.EventConfidences[eventID]
		path = append(path, model.TraceStep{
			Level:        model.TraceLevelEvent,
			EvidenceType: model.EvidenceTypeInteraction,
			ReferenceID:  eventID,
			Confidence:   ec.Overall(),
		})

		frameIDs := ref.BidirectionalLinks.EventToFrames[eventID]
		if len(frameIDs) == 0 {
			complete = false
			continue
		}
		for _, frameID := range frameIDs {
			fc := prop.FrameConfidences[frameID]
			path = append(path, model.TraceStep{
				Level:        model.TraceLevelFrame,
				EvidenceType: model.EvidenceTypeVisual,
				ReferenceID:  frameID,
				Confidence:   fc.Overall(),
			})
		}
	}

	return model.EvidenceTrace{
		SummaryID:       summaryID,
		TraceComplete:   complete,
		TracePath:       path,
		TotalConfidence: totalTraceConfidence(path),
	}
}

// totalTraceConfidence aggregates step confidences into a single [0,1]
// value (mean over all steps).
func totalTraceConfidence(path []model.TraceStep) float64 {
	if len(path) == 0 {
		return 0
	}
	sum := 0.0
	for _, step := range path {
		sum += step.Confidence
	}
	return clamp01(sum / float64(len(path)))
}
