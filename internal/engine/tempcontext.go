package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

// AnalyzeTemporalContext locates the spans surrounding a session and scores
// how strongly the session appears to be part of a larger workflow. Spans
// are read-only context input; the result is computed even with zero
// context spans (score 0, flag false).
func AnalyzeTemporalContext(session model.ActivitySession, spans []model.Span, cfg config.ContextConfig) model.TemporalContext {
	var preceding, following []model.Span
	for _, sp := range spans {
		if !sp.EndTime.After(session.StartTime) {
			if session.StartTime.Sub(sp.EndTime) <= cfg.Lookback() {
				preceding = append(preceding, sp)
			}
			continue
		}
		if !sp.StartTime.Before(session.EndTime) {
			if sp.StartTime.Sub(session.EndTime) <= cfg.Lookahead() {
				following = append(following, sp)
			}
		}
	}

	// Order both lists by proximity to the session.
	sort.SliceStable(preceding, func(i, j int) bool {
		return preceding[i].EndTime.After(preceding[j].EndTime)
	})
	sort.SliceStable(following, func(i, j int) bool {
		return following[i].StartTime.Before(following[j].StartTime)
	})

	continuity := model.WorkflowContinuity{
		IsPartOfLargerWorkflow: len(preceding)+len(following) > 0,
	}

	if continuity.IsPartOfLargerWorkflow {
		continuity.ContinuityScore = continuityScore(session, preceding, following, cfg)
		continuity.WorkflowPhase = workflowPhase(nearestSpan(session, preceding, following))
		for _, sp := range preceding {
			continuity.RelatedActivities = append(continuity.RelatedActivities, sp.Title)
		}
		for _, sp := range following {
			continuity.RelatedActivities = append(continuity.RelatedActivities, sp.Title)
		}
	}

	return model.TemporalContext{
		PrecedingSpans:     preceding,
		FollowingSpans:     following,
		WorkflowContinuity: continuity,
	}
}

// continuityScore blends inverse temporal distance (closer spans score
// higher, decaying toward 0 at the window edge) with tag/kind overlap
// between the context spans and the session.
func continuityScore(session model.ActivitySession, preceding, following []model.Span, cfg config.ContextConfig) float64 {
	proximity := 0.0
	if len(preceding) > 0 {
		p := windowProximity(session.StartTime.Sub(preceding[0].EndTime), cfg.Lookback())
		if p > proximity {
			proximity = p
		}
	}
	if len(following) > 0 {
		p := windowProximity(following[0].StartTime.Sub(session.EndTime), cfg.Lookahead())
		if p > proximity {
			proximity = p
		}
	}

	matched := 0
	total := 0
	for _, sp := range append(append([]model.Span{}, preceding...), following...) {
		total++
		if spanMatchesSession(sp, session) {
			matched++
		}
	}
	overlap := 0.0
	if total > 0 {
		overlap = float64(matched) / float64(total)
	}

	return clamp01(0.7*proximity + 0.3*overlap)
}

// windowProximity maps a distance within [0, window] to (0, 1], linear.
func windowProximity(dist, window time.Duration) float64 {
	if window <= 0 || dist < 0 || dist > window {
		return 0
	}
	return 1 - dist.Seconds()/window.Seconds()
}

// spanMatchesSession reports whether a span's kind or tags reference the
// session's application or activity type.
func spanMatchesSession(sp model.Span, session model.ActivitySession) bool {
	needles := []string{
		strings.ToLower(session.PrimaryApplication),
		strings.ToLower(string(session.SessionType)),
	}
	haystack := []string{strings.ToLower(sp.Kind), strings.ToLower(sp.Title)}
	for _, tag := range sp.Tags {
		haystack = append(haystack, strings.ToLower(tag))
	}
	for _, n := range needles {
		if n == "" {
			continue
		}
		for _, h := range haystack {
			if h != "" && strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

// nearestSpan returns the contextual span closest to the session, or nil
// when no context exists. Preceding and following lists are already
// proximity-ordered.
func nearestSpan(session model.ActivitySession, preceding, following []model.Span) *model.Span {
	switch {
	case len(preceding) == 0 && len(following) == 0:
		return nil
	case len(preceding) == 0:
		return &following[0]
	case len(following) == 0:
		return &preceding[0]
	}
	before := session.StartTime.Sub(preceding[0].EndTime)
	after := following[0].StartTime.Sub(session.EndTime)
	if after < before {
		return &following[0]
	}
	return &preceding[0]
}

// workflowPhase derives a phase label from the nearest span's kind, falling
// back to its first tag.
func workflowPhase(sp *model.Span) string {
	if sp == nil {
		return ""
	}
	if sp.Kind != "" {
		return sp.Kind
	}
	if len(sp.Tags) > 0 {
		return sp.Tags[0]
	}
	return ""
}
