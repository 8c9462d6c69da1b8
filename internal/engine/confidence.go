package engine

import (
	"math"
	"strings"
	"time"

	"github.com/sightglass/evidence-cli/internal/model"
)

// Neutral values substituted when frame metadata omits the optional
// capture-quality signals.
const (
	defaultOCRConfidence = 0.8
	defaultImageQuality  = 0.9
)

// Aggregate blend weights: event reliability dominates, frame quality and
// the narrative-stage confidence refine it.
const (
	aggWeightEvents    = 0.5
	aggWeightFrames    = 0.3
	aggWeightNarrative = 0.2
)

// PropagateConfidence computes per-frame, per-event, and aggregate summary
// confidence for a summary's direct evidence, plus the named signed factors
// explaining the result. All outputs are clamped to their documented
// ranges at the point of computation.
func PropagateConfidence(summary model.ActivitySummary, frames []model.FrameMetadata) model.ConfidencePropagation {
	frameByID := make(map[string]model.FrameMetadata, len(frames))
	for _, f := range frames {
		frameByID[f.FrameID] = f
	}

	direct := directEvidenceFrames(summary.KeyEvents)

	frameConfs := make(map[string]model.FrameConfidence, len(direct))
	for _, id := range direct {
		frameConfs[id] = frameConfidence(id, direct, frameByID, summary.Session)
	}

	eventConfs := make(map[string]model.EventConfidence, len(summary.KeyEvents))
	for _, e := range summary.KeyEvents {
		eventConfs[e.ID] = eventConfidence(e, frameByID)
	}

	aggregated := aggregateConfidence(eventConfs, frameConfs, summary.Confidence)

	return model.ConfidencePropagation{
		FrameConfidences:  frameConfs,
		EventConfidences:  eventConfs,
		SummaryConfidence: model.SummaryConfidence{AggregatedConfidence: aggregated},
		ConfidenceFactors: confidenceFactors(summary.KeyEvents, frameConfs, eventConfs),
	}
}

// directEvidenceFrames returns the deduplicated union of evidence frames
// across the key events, preserving first-seen order.
func directEvidenceFrames(keyEvents []model.ActivityEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range keyEvents {
		for _, id := range e.EvidenceFrames {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// frameConfidence scores one direct-evidence frame. Frames with no
// metadata on record fall back to neutral values across the board.
func frameConfidence(frameID string, direct []string, frameByID map[string]model.FrameMetadata, session model.ActivitySession) model.FrameConfidence {
	f, ok := frameByID[frameID]
	if !ok {
		return model.FrameConfidence{
			OCRConfidence:     defaultOCRConfidence,
			ImageQuality:      defaultImageQuality,
			TemporalStability: 0.5,
			ContextRelevance:  0.5,
		}
	}

	ocr := defaultOCRConfidence
	if f.OCRConfidence != nil {
		ocr = clamp01(*f.OCRConfidence)
	}
	quality := defaultImageQuality
	if f.ImageQuality != nil {
		quality = clamp01(*f.ImageQuality)
	}

	return model.FrameConfidence{
		OCRConfidence:     ocr,
		ImageQuality:      quality,
		TemporalStability: temporalStability(f, direct, frameByID),
		ContextRelevance:  contextRelevance(f, session),
	}
}

// temporalStability rewards frames captured close to other direct-evidence
// frames: evidence clustered in time is more trustworthy than an isolated
// capture. Halves per minute of distance to the nearest sibling.
func temporalStability(f model.FrameMetadata, direct []string, frameByID map[string]model.FrameMetadata) float64 {
	nearest := time.Duration(math.MaxInt64)
	for _, id := range direct {
		if id == f.FrameID {
			continue
		}
		sibling, ok := frameByID[id]
		if !ok {
			continue
		}
		d := sibling.Timestamp.Sub(f.Timestamp)
		if d < 0 {
			d = -d
		}
		if d < nearest {
			nearest = d
		}
	}
	if nearest == time.Duration(math.MaxInt64) {
		// Sole evidence frame: no neighbors to corroborate or contradict.
		return 0.7
	}
	return clamp01(math.Pow(2, -nearest.Minutes()))
}

// contextRelevance measures application/window agreement between the frame
// and its session.
func contextRelevance(f model.FrameMetadata, session model.ActivitySession) float64 {
	switch {
	case session.PrimaryApplication == "":
		return 0.5
	case f.ApplicationName == session.PrimaryApplication:
		return 1.0
	case f.WindowTitle != "" && containsFold(f.WindowTitle, session.PrimaryApplication):
		return 0.75
	default:
		return 0.5
	}
}

// eventConfidence scores one key event from its raw confidence and the
// shape of its evidence.
func eventConfidence(e model.ActivityEvent, frameByID map[string]model.FrameMetadata) model.EventConfidence {
	raw := clamp01(e.Confidence)
	count := len(e.EvidenceFrames)

	temporal := 0.4*math.Min(float64(count)/5, 1.0) + 0.6*raw

	return model.EventConfidence{
		RawConfidence:       raw,
		EvidenceFrameCount:  count,
		TemporalConsistency: clamp01(temporal),
		SpatialConsistency:  spatialConsistency(e, frameByID),
	}
}

// spatialConsistency is 1.0 when all of an event's evidence frames share a
// single application, penalized when the evidence scatters across
// applications or window contexts.
func spatialConsistency(e model.ActivityEvent, frameByID map[string]model.FrameMetadata) float64 {
	apps := make(map[string]bool)
	windows := make(map[string]bool)
	for _, id := range e.EvidenceFrames {
		f, ok := frameByID[id]
		if !ok {
			continue
		}
		if f.ApplicationName != "" {
			apps[f.ApplicationName] = true
		}
		if f.WindowTitle != "" {
			windows[f.WindowTitle] = true
		}
	}

	switch {
	case len(apps) > 2:
		return 0.5
	case len(apps) == 2:
		return 0.7
	case len(windows) > 1:
		return 0.9
	default:
		return 1.0
	}
}

// aggregateConfidence blends mean event confidence, mean frame confidence,
// and the narrative-stage confidence, clamped to [0,1].
func aggregateConfidence(events map[string]model.EventConfidence, frames map[string]model.FrameConfidence, narrative float64) float64 {
	eventMean := 0.0
	if len(events) > 0 {
		for _, ec := range events {
			eventMean += ec.Overall()
		}
		eventMean /= float64(len(events))
	}

	frameMean := 0.0
	if len(frames) > 0 {
		for _, fc := range frames {
			frameMean += fc.Overall()
		}
		frameMean /= float64(len(frames))
	}

	return clamp01(aggWeightEvents*eventMean + aggWeightFrames*frameMean + aggWeightNarrative*clamp01(narrative))
}

// confidenceFactors explains the aggregate score as named, signed
// contributions. Non-empty whenever at least one key event exists.
func confidenceFactors(keyEvents []model.ActivityEvent, frames map[string]model.FrameConfidence, events map[string]model.EventConfidence) []model.ConfidenceFactor {
	if len(keyEvents) == 0 {
		return nil
	}

	var factors []model.ConfidenceFactor

	totalFrames := 0
	rawSum := 0.0
	for _, e := range keyEvents {
		totalFrames += len(e.EvidenceFrames)
		rawSum += clamp01(e.Confidence)
	}
	density := float64(totalFrames) / float64(len(keyEvents))
	rawMean := rawSum / float64(len(keyEvents))

	switch {
	case density >= 3:
		factors = append(factors, factor("high_evidence_density",
			"key events are backed by multiple evidence frames each", 0.15))
	case density < 1:
		factors = append(factors, factor("low_evidence_density",
			"most key events lack visual evidence frames", -0.2))
	default:
		factors = append(factors, factor("moderate_evidence_density",
			"key events average at least one evidence frame", 0.05))
	}

	switch {
	case rawMean >= 0.7:
		factors = append(factors, factor("high_event_confidence",
			"interaction events were detected with high confidence", 0.2))
	case rawMean < 0.4:
		factors = append(factors, factor("low_event_confidence",
			"interaction events were detected with low confidence", -0.25))
	default:
		factors = append(factors, factor("moderate_event_confidence",
			"interaction events were detected with moderate confidence", 0.05))
	}

	if len(frames) > 0 {
		ocrMean := 0.0
		for _, fc := range frames {
			ocrMean += fc.OCRConfidence
		}
		ocrMean /= float64(len(frames))
		switch {
		case ocrMean >= 0.8:
			factors = append(factors, factor("high_ocr_confidence",
				"supporting frames were read with high OCR confidence", 0.1))
		case ocrMean < 0.5:
			factors = append(factors, factor("low_ocr_confidence",
				"supporting frames were read with low OCR confidence", -0.15))
		}
	}

	spatialMean := 0.0
	if len(events) > 0 {
		for _, ec := range events {
			spatialMean += ec.SpatialConsistency
		}
		spatialMean /= float64(len(events))
		if spatialMean < 0.8 {
			factors = append(factors, factor("scattered_evidence",
				"evidence frames span multiple unrelated applications", -0.1))
		}
	}

	return factors
}

func factor(name, description string, impact float64) model.ConfidenceFactor {
	if impact > 1 {
		impact = 1
	}
	if impact < -1 {
		impact = -1
	}
	return model.ConfidenceFactor{Name: name, Description: description, Impact: impact}
}

// clamp01 bounds a score to [0,1]. Out-of-range values are clamped at the
// point of computation, never surfaced as errors.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// containsFold reports a case-insensitive substring match.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
