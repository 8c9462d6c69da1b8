package engine

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

// SceneTransitionSignal reports the scene-change magnitude for a frame, in
// [0,1]. The delta computation belongs to the capture/OCR layer; the
// correlator only consumes the signal. A nil signal contributes nothing.
type SceneTransitionSignal func(frameID string) (delta float64, ok bool)

// Correlation score weights. Temporal proximity dominates; the remaining
// signals refine the ranking.
const (
	weightTemporal   = 0.5
	weightAppContext = 0.25
	weightWorkflow   = 0.15
	weightScene      = 0.1
)

// Per-signal floors above which a reason is recorded.
const (
	reasonFloorTemporal = 0.5
	reasonFloorWorkflow = 0.3
	reasonFloorScene    = 0.5
)

// FindTemporallyCorrelatedFrames locates frames temporally and contextually
// correlated with a session beyond the frames events cite directly; frame
// ids in direct are skipped. Results are ordered by descending score (ties
// broken by earlier timestamp), filtered at cfg.MinEvidenceConfidence, and
// capped at cfg.MaxEvidenceFrames.
func FindTemporallyCorrelatedFrames(session model.ActivitySession, frames []model.FrameMetadata, direct []string, continuity float64, scene SceneTransitionSignal, cfg config.CorrelatorConfig) []model.CorrelatedFrame {
	margin := cfg.MaxTemporalDistance()
	windowStart := session.StartTime.Add(-margin)
	windowEnd := session.EndTime.Add(margin)

	cited := make(map[string]struct{}, len(direct))
	for _, id := range direct {
		cited[id] = struct{}{}
	}

	var correlated []model.CorrelatedFrame
	for _, f := range frames {
		if _, ok := cited[f.FrameID]; ok {
			continue
		}
		if f.Timestamp.Before(windowStart) || f.Timestamp.After(windowEnd) {
			continue
		}

		score, reasons := scoreFrame(session, f, continuity, scene, cfg)
		if score < cfg.MinEvidenceConfidence {
			continue
		}

		correlated = append(correlated, model.CorrelatedFrame{
			FrameID:            f.FrameID,
			Timestamp:          f.Timestamp,
			CorrelationScore:   score,
			CorrelationReasons: reasons,
			ApplicationName:    f.ApplicationName,
			WindowTitle:        f.WindowTitle,
		})
	}

	sort.SliceStable(correlated, func(i, j int) bool {
		if correlated[i].CorrelationScore != correlated[j].CorrelationScore {
			return correlated[i].CorrelationScore > correlated[j].CorrelationScore
		}
		return correlated[i].Timestamp.Before(correlated[j].Timestamp)
	})

	if cfg.MaxEvidenceFrames > 0 && len(correlated) > cfg.MaxEvidenceFrames {
		correlated = correlated[:cfg.MaxEvidenceFrames]
	}

	zap.L().Debug("correlate: frames correlated",
		zap.String("session_id", session.ID),
		zap.Int("candidates", len(frames)),
		zap.Int("correlated", len(correlated)),
	)
	return correlated
}

// scoreFrame computes the weighted correlation score for one frame plus the
// reasons whose contribution cleared the recording floor. Reasons come from
// the closed vocabulary only, and the set is never empty: when no floor
// fires, the dominant contributing signal is recorded instead.
func scoreFrame(session model.ActivitySession, f model.FrameMetadata, continuity float64, scene SceneTransitionSignal, cfg config.CorrelatorConfig) (float64, []model.CorrelationReason) {
	var reasons []model.CorrelationReason

	temporal := temporalProximity(nearestEventDistance(session, f.Timestamp), cfg)
	if temporal > reasonFloorTemporal {
		reasons = append(reasons, model.ReasonTemporalProximity)
	}

	appMatch := 0.0
	if f.ApplicationName != "" && f.ApplicationName == session.PrimaryApplication {
		appMatch = 1.0
		reasons = append(reasons, model.ReasonApplicationContext)
	}

	sceneDelta := 0.0
	if scene != nil {
		if delta, ok := scene(f.FrameID); ok {
			sceneDelta = clamp01(delta)
			if sceneDelta >= reasonFloorScene {
				reasons = append(reasons, model.ReasonSceneTransition)
			}
		}
	}

	continuity = clamp01(continuity)
	if continuity >= reasonFloorWorkflow {
		reasons = append(reasons, model.ReasonWorkflowContinuity)
	}

	score := weightTemporal*temporal +
		weightAppContext*appMatch +
		weightWorkflow*continuity +
		weightScene*sceneDelta

	if len(reasons) == 0 {
		reasons = append(reasons, dominantReason(temporal, appMatch, continuity, sceneDelta))
	}

	return clamp01(score), reasons
}

// dominantReason names the signal contributing the most weighted score,
// preferring temporal proximity on ties.
func dominantReason(temporal, appMatch, continuity, sceneDelta float64) model.CorrelationReason {
	best := model.ReasonTemporalProximity
	bestContribution := weightTemporal * temporal
	if c := weightAppContext * appMatch; c > bestContribution {
		best, bestContribution = model.ReasonApplicationContext, c
	}
	if c := weightWorkflow * continuity; c > bestContribution {
		best, bestContribution = model.ReasonWorkflowContinuity, c
	}
	if c := weightScene * sceneDelta; c > bestContribution {
		best = model.ReasonSceneTransition
	}
	return best
}

// nearestEventDistance returns the absolute distance from t to the closest
// event in the session.
func nearestEventDistance(session model.ActivitySession, t time.Time) time.Duration {
	nearest := time.Duration(math.MaxInt64)
	for _, e := range session.Events {
		d := e.Timestamp.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < nearest {
			nearest = d
		}
	}
	return nearest
}

// temporalProximity decays exponentially with distance: 1.0 at the event
// itself, halving every decayFactor fraction of the correlation window.
func temporalProximity(dist time.Duration, cfg config.CorrelatorConfig) float64 {
	window := cfg.MaxTemporalDistance()
	if window <= 0 {
		return 0
	}
	halfLife := cfg.TemporalDecayFactor * window.Seconds()
	if halfLife <= 0 {
		halfLife = window.Seconds()
	}
	return clamp01(math.Pow(2, -dist.Seconds()/halfLife))
}
