// Package engine implements the session segmentation, evidence correlation,
// and confidence propagation core. Every exported function is a pure,
// stateless function of its inputs; the engine performs no I/O and holds no
// mutable state across calls.
package engine

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

// SegmentEvents groups a chronological event stream into coherent activity
// sessions. Events outside timeRange are ignored; a new session boundary
// starts whenever the gap between consecutive events exceeds
// cfg.MaxEventGap. Candidates with fewer than cfg.MinEventsForSummary
// events or spanning less than cfg.MinSessionDuration are dropped. Empty
// input yields an empty result, never an error.
func SegmentEvents(events []model.ActivityEvent, timeRange model.TimeRange, cfg config.SegmenterConfig) []model.ActivitySession {
	filtered := make([]model.ActivityEvent, 0, len(events))
	for _, e := range events {
		if timeRange.Contains(e.Timestamp) {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	// Bound the per-call cost. Overflow events are excluded from
	// segmentation, not an error condition.
	if cfg.MaxEventsForAnalysis > 0 && len(filtered) > cfg.MaxEventsForAnalysis {
		zap.L().Warn("segment: event cap exceeded, truncating",
			zap.Int("events", len(filtered)),
			zap.Int("cap", cfg.MaxEventsForAnalysis),
		)
		filtered = filtered[:cfg.MaxEventsForAnalysis]
	}

	var sessions []model.ActivitySession
	start := 0
	for i := 1; i <= len(filtered); i++ {
		if i < len(filtered) && filtered[i].Timestamp.Sub(filtered[i-1].Timestamp) <= cfg.MaxEventGap() {
			continue
		}
		if s, ok := buildSession(filtered[start:i], cfg); ok {
			sessions = append(sessions, s)
		}
		start = i
	}

	zap.L().Debug("segment: segmentation complete",
		zap.Int("events", len(filtered)),
		zap.Int("sessions", len(sessions)),
	)
	return sessions
}

// buildSession turns a contiguous run of events into a session, or returns
// false when the candidate fails the size/duration thresholds.
func buildSession(events []model.ActivityEvent, cfg config.SegmenterConfig) (model.ActivitySession, bool) {
	if len(events) < cfg.MinEventsForSummary {
		return model.ActivitySession{}, false
	}

	start := events[0].Timestamp
	end := events[len(events)-1].Timestamp
	if end.Sub(start) < cfg.MinSessionDuration() {
		return model.ActivitySession{}, false
	}

	owned := make([]model.ActivityEvent, len(events))
	copy(owned, events)

	return model.ActivitySession{
		ID:                 uuid.New().String(),
		StartTime:          start,
		EndTime:            end,
		Events:             owned,
		PrimaryApplication: primaryApplication(owned),
		SessionType:        classifySessionType(owned),
	}, true
}

// primaryApplication returns the plurality app_name across the session's
// events, ties broken by first-seen order.
func primaryApplication(events []model.ActivityEvent) string {
	counts := make(map[string]int)
	var order []string
	for _, e := range events {
		app := e.AppName()
		if app == "" {
			continue
		}
		if _, seen := counts[app]; !seen {
			order = append(order, app)
		}
		counts[app]++
	}

	best := ""
	bestCount := 0
	for _, app := range order {
		if counts[app] > bestCount {
			best = app
			bestCount = counts[app]
		}
	}
	return best
}

// classifySessionType classifies a session by its event-type distribution.
// A type family is dominant when it accounts for more than half the events.
func classifySessionType(events []model.ActivityEvent) model.SessionType {
	var formLike, dataEntry, navLike int
	for _, e := range events {
		switch e.Type {
		case model.EventTypeFieldChange, model.EventTypeFormSubmission:
			formLike++
		case model.EventTypeDataEntry:
			dataEntry++
		case model.EventTypeNavigation, model.EventTypeClick:
			navLike++
		}
	}

	half := len(events) / 2
	switch {
	case formLike > half:
		return model.SessionTypeFormFilling
	case dataEntry > half:
		return model.SessionTypeDataEntry
	case navLike > half:
		return model.SessionTypeNavigation
	default:
		return model.SessionTypeMixed
	}
}
