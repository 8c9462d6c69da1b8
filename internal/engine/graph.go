package engine

import (
	"github.com/rotisserie/eris"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

// ErrGraphInconsistency signals a violated bidirectional link invariant.
// It marks an implementation bug, never a data condition; callers are not
// expected to see it in correct operation.
var ErrGraphInconsistency = eris.New("evidence graph: bidirectional link invariant violated")

// BuildEvidenceReference constructs the full evidence graph for a summary:
// the direct-evidence frame set, session-correlated frames, the
// bidirectional link maps, and the propagated confidence. Both link
// directions are derived from the one canonical event→frames map, then
// verified as a post-condition.
func BuildEvidenceReference(summary model.ActivitySummary, frames []model.FrameMetadata, continuity float64, scene SceneTransitionSignal, cfg config.CorrelatorConfig) (model.EvidenceReference, error) {
	eventEvidence := make(map[string][]string, len(summary.KeyEvents))
	for _, e := range summary.KeyEvents {
		eventEvidence[e.ID] = append([]string(nil), e.EvidenceFrames...)
	}

	links := buildLinks(summary.ID, summary.KeyEvents, eventEvidence)
	if err := VerifyBidirectionalLinks(summary.ID, links); err != nil {
		return model.EvidenceReference{}, err
	}

	direct := directEvidenceFrames(summary.KeyEvents)

	return model.EvidenceReference{
		SummaryID:             summary.ID,
		SessionID:             summary.Session.ID,
		DirectEvidenceFrames:  direct,
		CorrelatedFrames:      FindTemporallyCorrelatedFrames(summary.Session, frames, direct, continuity, scene, cfg),
		EventEvidenceMap:      eventEvidence,
		BidirectionalLinks:    links,
		ConfidencePropagation: PropagateConfidence(summary, frames),
	}, nil
}

// buildLinks derives every link direction from the canonical event→frames
// map, which makes the invariant true by construction.
func buildLinks(summaryID string, keyEvents []model.ActivityEvent, eventEvidence map[string][]string) model.BidirectionalLinks {
	links := model.BidirectionalLinks{
		FrameToEvents:   make(map[string][]string),
		EventToFrames:   make(map[string][]string, len(eventEvidence)),
		SummaryToEvents: map[string][]string{summaryID: nil},
		EventToSummary:  make(map[string]string, len(keyEvents)),
	}

	for _, e := range keyEvents {
		links.SummaryToEvents[summaryID] = append(links.SummaryToEvents[summaryID], e.ID)
		links.EventToSummary[e.ID] = summaryID
		links.EventToFrames[e.ID] = append([]string(nil), eventEvidence[e.ID]...)
		for _, frameID := range eventEvidence[e.ID] {
			links.FrameToEvents[frameID] = append(links.FrameToEvents[frameID], e.ID)
		}
	}

	return links
}

// VerifyBidirectionalLinks checks the graph invariants: frame↔event links
// mirror each other exactly, and summary↔event links agree on the summary
// id. Returns ErrGraphInconsistency (wrapped with the offending ids) on
// violation.
func VerifyBidirectionalLinks(summaryID string, links model.BidirectionalLinks) error {
	for frameID, eventIDs := range links.FrameToEvents {
		for _, eventID := range eventIDs {
			if !containsID(links.EventToFrames[eventID], frameID) {
				return eris.Wrapf(ErrGraphInconsistency, "frame %s lists event %s without the reverse link", frameID, eventID)
			}
		}
	}
	for eventID, frameIDs := range links.EventToFrames {
		for _, frameID := range frameIDs {
			if !containsID(links.FrameToEvents[frameID], eventID) {
				return eris.Wrapf(ErrGraphInconsistency, "event %s lists frame %s without the reverse link", eventID, frameID)
			}
		}
	}

	for _, eventID := range links.SummaryToEvents[summaryID] {
		if links.EventToSummary[eventID] != summaryID {
			return eris.Wrapf(ErrGraphInconsistency, "event %s does not map back to summary %s", eventID, summaryID)
		}
	}
	for eventID, sid := range links.EventToSummary {
		if sid != summaryID || !containsID(links.SummaryToEvents[summaryID], eventID) {
			return eris.Wrapf(ErrGraphInconsistency, "event %s summary link does not round-trip", eventID)
		}
	}

	return nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
