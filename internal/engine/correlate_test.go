package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

func corrCfg() config.CorrelatorConfig {
	return config.CorrelatorConfig{
		MaxTemporalDistanceSecs: 300,
		MinEvidenceConfidence:   0.3,
		MaxEvidenceFrames:       10,
		TemporalDecayFactor:     0.5,
	}
}

func corrSession() model.ActivitySession {
	return model.ActivitySession{
		ID:                 "s1",
		StartTime:          segBase,
		EndTime:            segBase.Add(10 * time.Minute),
		PrimaryApplication: "Safari",
		Events: []model.ActivityEvent{
			evAt("e1", segBase, model.EventTypeFieldChange, "Safari"),
			evAt("e2", segBase.Add(5*time.Minute), model.EventTypeFieldChange, "Safari"),
			evAt("e3", segBase.Add(10*time.Minute), model.EventTypeFormSubmission, "Safari"),
		},
	}
}

func frameAt(id string, t time.Time, app string) model.FrameMetadata {
	return model.FrameMetadata{FrameID: id, Timestamp: t, ApplicationName: app}
}

func TestFindTemporallyCorrelatedFrames_Empty(t *testing.T) {
	got := FindTemporallyCorrelatedFrames(corrSession(), nil, nil, 0, nil, corrCfg())
	assert.Empty(t, got)
}

func TestFindTemporallyCorrelatedFrames_WindowExcludesDistantFrames(t *testing.T) {
	s := corrSession()
	frames := []model.FrameMetadata{
		frameAt("in", s.StartTime.Add(time.Minute), "Safari"),
		frameAt("before", s.StartTime.Add(-10*time.Minute), "Safari"),
		frameAt("after", s.EndTime.Add(10*time.Minute), "Safari"),
	}

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0, nil, corrCfg())
	require.Len(t, got, 1)
	assert.Equal(t, "in", got[0].FrameID)
}

func TestFindTemporallyCorrelatedFrames_OrderedByScoreDescending(t *testing.T) {
	s := corrSession()
	frames := []model.FrameMetadata{
		// 100s from the nearest event, wrong application — weakest.
		frameAt("weak", s.EndTime.Add(100*time.Second), "Slack"),
		// On an event, matching application — strongest.
		frameAt("strong", s.StartTime, "Safari"),
		// On an event, wrong application.
		frameAt("mid", s.StartTime.Add(5*time.Minute), "Slack"),
	}

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0, nil, corrCfg())
	require.Len(t, got, 3)
	assert.Equal(t, "strong", got[0].FrameID)
	assert.Equal(t, "mid", got[1].FrameID)
	assert.Equal(t, "weak", got[2].FrameID)
	assert.GreaterOrEqual(t, got[0].CorrelationScore, got[1].CorrelationScore)
	assert.GreaterOrEqual(t, got[1].CorrelationScore, got[2].CorrelationScore)
}

func TestFindTemporallyCorrelatedFrames_TieBrokenByEarlierTimestamp(t *testing.T) {
	s := corrSession()
	// Both frames sit exactly on an event with the same app: identical scores.
	frames := []model.FrameMetadata{
		frameAt("later", s.StartTime.Add(5*time.Minute), "Safari"),
		frameAt("earlier", s.StartTime, "Safari"),
	}

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0, nil, corrCfg())
	require.Len(t, got, 2)
	assert.Equal(t, "earlier", got[0].FrameID)
	assert.Equal(t, "later", got[1].FrameID)
}

func TestFindTemporallyCorrelatedFrames_Cap(t *testing.T) {
	cfg := corrCfg()
	cfg.MaxEvidenceFrames = 3

	s := corrSession()
	var frames []model.FrameMetadata
	for i := 0; i < 8; i++ {
		frames = append(frames, frameAt(
			string(rune('a'+i)),
			s.StartTime.Add(time.Duration(i)*time.Minute),
			"Safari",
		))
	}

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0, nil, cfg)
	assert.Len(t, got, 3)
}

func TestFindTemporallyCorrelatedFrames_ScoreFloorFilters(t *testing.T) {
	cfg := corrCfg()
	cfg.MinEvidenceConfidence = 0.9

	s := corrSession()
	// Wrong app near the window edge: well below 0.9.
	frames := []model.FrameMetadata{
		frameAt("weak", s.EndTime.Add(4*time.Minute), "Slack"),
	}

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0, nil, cfg)
	assert.Empty(t, got)
}

func TestFindTemporallyCorrelatedFrames_SkipsDirectEvidence(t *testing.T) {
	s := corrSession()
	frames := []model.FrameMetadata{
		frameAt("cited", s.StartTime, "Safari"),
		frameAt("extra", s.StartTime.Add(time.Minute), "Safari"),
	}

	got := FindTemporallyCorrelatedFrames(s, frames, []string{"cited"}, 0, nil, corrCfg())
	require.Len(t, got, 1)
	assert.Equal(t, "extra", got[0].FrameID)
}

func TestFindTemporallyCorrelatedFrames_AdmittedFramesCarryReasons(t *testing.T) {
	s := corrSession()
	// Every signal sits just under its recording floor, yet the aggregate
	// score clears the admission threshold: the dominant signal is recorded.
	frames := []model.FrameMetadata{
		frameAt("f1", s.EndTime.Add(180*time.Second), "Slack"),
	}
	scene := func(frameID string) (float64, bool) { return 0.49, true }

	got := FindTemporallyCorrelatedFrames(s, frames, nil, 0.29, scene, corrCfg())
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].CorrelationScore, corrCfg().MinEvidenceConfidence)
	assert.Equal(t, []model.CorrelationReason{model.ReasonTemporalProximity}, got[0].CorrelationReasons)
}

func TestScoreFrame_ReasonsFromClosedVocabulary(t *testing.T) {
	s := corrSession()
	scene := func(frameID string) (float64, bool) { return 0.8, true }

	_, reasons := scoreFrame(s, frameAt("f1", s.StartTime, "Safari"), 0.9, scene, corrCfg())
	assert.Contains(t, reasons, model.ReasonTemporalProximity)
	assert.Contains(t, reasons, model.ReasonApplicationContext)
	assert.Contains(t, reasons, model.ReasonSceneTransition)
	assert.Contains(t, reasons, model.ReasonWorkflowContinuity)

	known := model.AllCorrelationReasons()
	for _, r := range reasons {
		assert.Contains(t, known, r)
	}
}

func TestScoreFrame_SceneSignalRaisesScore(t *testing.T) {
	s := corrSession()
	f := frameAt("f1", s.StartTime, "Safari")

	without, _ := scoreFrame(s, f, 0, nil, corrCfg())
	scene := func(frameID string) (float64, bool) { return 1.0, true }
	with, _ := scoreFrame(s, f, 0, scene, corrCfg())

	assert.Greater(t, with, without)
	assert.InDelta(t, 0.1, with-without, 0.001)
}

func TestScoreFrame_Bounded(t *testing.T) {
	s := corrSession()
	scene := func(frameID string) (float64, bool) { return 5.0, true } // out of range input
	score, _ := scoreFrame(s, frameAt("f1", s.StartTime, "Safari"), 2.0, scene, corrCfg())
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestDominantReason(t *testing.T) {
	assert.Equal(t, model.ReasonTemporalProximity, dominantReason(0.4, 0, 0.2, 0.3))
	assert.Equal(t, model.ReasonWorkflowContinuity, dominantReason(0.05, 0, 0.9, 0.2))
	assert.Equal(t, model.ReasonSceneTransition, dominantReason(0, 0, 0, 0.4))
	// Ties prefer temporal proximity.
	assert.Equal(t, model.ReasonTemporalProximity, dominantReason(0, 0, 0, 0))
}

func TestTemporalProximity_Decay(t *testing.T) {
	cfg := corrCfg()
	// Half-life is decayFactor * window = 150s.
	assert.InDelta(t, 1.0, temporalProximity(0, cfg), 0.001)
	assert.InDelta(t, 0.5, temporalProximity(150*time.Second, cfg), 0.001)
	assert.InDelta(t, 0.25, temporalProximity(300*time.Second, cfg), 0.001)
}

func TestTemporalProximity_ZeroWindow(t *testing.T) {
	cfg := corrCfg()
	cfg.MaxTemporalDistanceSecs = 0
	assert.Zero(t, temporalProximity(time.Minute, cfg))
}

func TestNearestEventDistance(t *testing.T) {
	s := corrSession()
	assert.Equal(t, time.Duration(0), nearestEventDistance(s, s.StartTime))
	assert.Equal(t, time.Minute, nearestEventDistance(s, s.StartTime.Add(time.Minute)))
	assert.Equal(t, 2*time.Minute, nearestEventDistance(s, s.StartTime.Add(7*time.Minute)))
}
