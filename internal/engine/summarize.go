package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

// Narrator turns a session and its context into narrative text. The real
// rendering stage lives outside the engine; callers plug their own
// implementation and the engine treats the output as opaque.
type Narrator interface {
	Narrate(session model.ActivitySession, context model.TemporalContext) (narrative string, outcomes []string)
}

// PlainNarrator is the built-in fallback narrator. It emits a single
// factual sentence so a summary is always well-formed without the external
// rendering stage.
type PlainNarrator struct{}

// Narrate implements Narrator.
func (PlainNarrator) Narrate(session model.ActivitySession, _ model.TemporalContext) (string, []string) {
	return fmt.Sprintf("%s activity in %s: %d events between %s and %s",
		session.SessionType,
		session.PrimaryApplication,
		len(session.Events),
		session.StartTime.Format("15:04:05"),
		session.EndTime.Format("15:04:05"),
	), nil
}

// BuildSummary assembles an ActivitySummary for a session: selects the key
// events, invokes the narrator, and sets the narrative-stage confidence to
// the mean raw confidence of the selected events. KeyEvents is always a
// non-empty subset of session.Events.
func BuildSummary(session model.ActivitySession, context model.TemporalContext, narrator Narrator, cfg config.SummaryConfig) model.ActivitySummary {
	if narrator == nil {
		narrator = PlainNarrator{}
	}

	keyEvents := selectKeyEvents(session.Events, cfg.MaxKeyEvents)
	narrative, outcomes := narrator.Narrate(session, context)

	confidence := 0.0
	for _, e := range keyEvents {
		confidence += clamp01(e.Confidence)
	}
	if len(keyEvents) > 0 {
		confidence /= float64(len(keyEvents))
	}

	return model.ActivitySummary{
		ID:         uuid.New().String(),
		Session:    session,
		Narrative:  narrative,
		KeyEvents:  keyEvents,
		Outcomes:   outcomes,
		Context:    context,
		Confidence: confidence,
	}
}

// selectKeyEvents ranks events by salience and keeps the top limit,
// restoring chronological order in the result. Salience favors state
// changes over pure navigation, higher detection confidence, and events
// carrying visual evidence.
func selectKeyEvents(events []model.ActivityEvent, limit int) []model.ActivityEvent {
	if limit <= 0 || len(events) <= limit {
		return append([]model.ActivityEvent(nil), events...)
	}

	ranked := append([]model.ActivityEvent(nil), events...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return eventSalience(ranked[i]) > eventSalience(ranked[j])
	})
	ranked = ranked[:limit]

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Timestamp.Before(ranked[j].Timestamp)
	})
	return ranked
}

func eventSalience(e model.ActivityEvent) float64 {
	base := 0.0
	switch e.Type {
	case model.EventTypeFormSubmission:
		base = 3
	case model.EventTypeFieldChange, model.EventTypeDataEntry:
		base = 2
	case model.EventTypeNavigation:
		base = 1
	default:
		base = 0.5
	}
	if len(e.EvidenceFrames) > 0 {
		base += 0.5
	}
	return base + clamp01(e.Confidence)
}
