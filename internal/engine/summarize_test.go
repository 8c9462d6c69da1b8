package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
)

type fixedNarrator struct {
	narrative string
	outcomes  []string
}

func (n fixedNarrator) Narrate(model.ActivitySession, model.TemporalContext) (string, []string) {
	return n.narrative, n.outcomes
}

func sumCfg() config.SummaryConfig {
	return config.SummaryConfig{MaxKeyEvents: 10}
}

func sumSession() model.ActivitySession {
	return model.ActivitySession{
		ID:                 "s1",
		StartTime:          segBase,
		EndTime:            segBase.Add(5 * time.Minute),
		PrimaryApplication: "Safari",
		SessionType:        model.SessionTypeFormFilling,
		Events: []model.ActivityEvent{
			evAt("e1", segBase, model.EventTypeFieldChange, "Safari"),
			evAt("e2", segBase.Add(2*time.Minute), model.EventTypeFieldChange, "Safari"),
			evAt("e3", segBase.Add(5*time.Minute), model.EventTypeFormSubmission, "Safari"),
		},
	}
}

func TestBuildSummary_UsesNarrator(t *testing.T) {
	n := fixedNarrator{narrative: "Filled out the vendor form.", outcomes: []string{"form submitted"}}

	summary := BuildSummary(sumSession(), model.TemporalContext{}, n, sumCfg())
	assert.Equal(t, "Filled out the vendor form.", summary.Narrative)
	assert.Equal(t, []string{"form submitted"}, summary.Outcomes)
	assert.NotEmpty(t, summary.ID)
}

func TestBuildSummary_NilNarratorFallsBack(t *testing.T) {
	summary := BuildSummary(sumSession(), model.TemporalContext{}, nil, sumCfg())
	assert.NotEmpty(t, summary.Narrative)
}

func TestBuildSummary_KeyEventsSubsetOfSession(t *testing.T) {
	s := sumSession()
	summary := BuildSummary(s, model.TemporalContext{}, nil, sumCfg())

	require.NotEmpty(t, summary.KeyEvents)
	ids := make(map[string]bool)
	for _, e := range s.Events {
		ids[e.ID] = true
	}
	for _, e := range summary.KeyEvents {
		assert.True(t, ids[e.ID])
	}
}

func TestBuildSummary_ConfidenceIsMeanRaw(t *testing.T) {
	s := sumSession()
	s.Events[0].Confidence = 0.6
	s.Events[1].Confidence = 0.8
	s.Events[2].Confidence = 1.0

	summary := BuildSummary(s, model.TemporalContext{}, nil, sumCfg())
	assert.InDelta(t, 0.8, summary.Confidence, 0.001)
}

func TestSelectKeyEvents_UnderLimitKeepsAll(t *testing.T) {
	events := sumSession().Events
	got := selectKeyEvents(events, 10)
	assert.Len(t, got, 3)
}

func TestSelectKeyEvents_RanksBySalienceThenRestoresOrder(t *testing.T) {
	events := []model.ActivityEvent{
		evAt("nav", segBase, model.EventTypeNavigation, "Safari"),
		evAt("scroll", segBase.Add(time.Minute), model.EventTypeScroll, "Safari"),
		evAt("field", segBase.Add(2*time.Minute), model.EventTypeFieldChange, "Safari"),
		evAt("submit", segBase.Add(3*time.Minute), model.EventTypeFormSubmission, "Safari"),
	}

	got := selectKeyEvents(events, 2)
	require.Len(t, got, 2)
	// The two most salient, back in chronological order.
	assert.Equal(t, "field", got[0].ID)
	assert.Equal(t, "submit", got[1].ID)
}

func TestSelectKeyEvents_EvidencePrioritized(t *testing.T) {
	backed := evAt("backed", segBase, model.EventTypeNavigation, "Safari")
	backed.EvidenceFrames = []string{"f1"}
	bare := evAt("bare", segBase.Add(time.Minute), model.EventTypeNavigation, "Safari")

	got := selectKeyEvents([]model.ActivityEvent{bare, backed}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "backed", got[0].ID)
}

func TestPlainNarrator(t *testing.T) {
	narrative, outcomes := PlainNarrator{}.Narrate(sumSession(), model.TemporalContext{})
	assert.Contains(t, narrative, "Safari")
	assert.Contains(t, narrative, "form_filling")
	assert.Empty(t, outcomes)
}
