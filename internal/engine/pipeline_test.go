package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
	"github.com/sightglass/evidence-cli/internal/store"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	analyses  map[string]*model.Analysis
	summaries map[string]model.StoredSummary
	spans     []model.Span
	statuses  []model.AnalysisStatus
}

func newMemStore() *memStore {
	return &memStore{
		analyses:  make(map[string]*model.Analysis),
		summaries: make(map[string]model.StoredSummary),
	}
}

func (m *memStore) CreateAnalysis(_ context.Context, params model.AnalysisParams) (*model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &model.Analysis{
		ID:        uuid.New().String(),
		Status:    model.AnalysisStatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.analyses[a.ID] = a
	return a, nil
}

func (m *memStore) UpdateAnalysisStatus(_ context.Context, id string, status model.AnalysisStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.analyses[id]; ok {
		a.Status = status
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) UpdateAnalysisResult(_ context.Context, id string, result *model.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.analyses[id]; ok {
		a.Result = result
	}
	return nil
}

func (m *memStore) GetAnalysis(_ context.Context, id string) (*model.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyses[id], nil
}

func (m *memStore) ListAnalyses(context.Context, store.AnalysisFilter) ([]model.Analysis, error) {
	return nil, nil
}

func (m *memStore) SaveSummary(_ context.Context, _ string, stored model.StoredSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[stored.Summary.ID] = stored
	return nil
}

func (m *memStore) GetSummary(_ context.Context, id string) (*model.StoredSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.summaries[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) ListSummaries(context.Context, string) ([]model.StoredSummary, error) {
	return nil, nil
}

func (m *memStore) SaveSpans(_ context.Context, spans []model.Span) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = append(m.spans, spans...)
	return nil
}

func (m *memStore) ListSpansInWindow(_ context.Context, window model.TimeRange) ([]model.Span, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Span
	for _, sp := range m.spans {
		if !sp.EndTime.Before(window.Start) && !sp.StartTime.After(window.End) {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func pipeCfg() *config.Config {
	return &config.Config{
		Segmenter: config.SegmenterConfig{
			MinSessionDurationSecs: 60,
			MaxEventGapSecs:        300,
			MinEventsForSummary:    3,
			MaxEventsForAnalysis:   1000,
		},
		Context: config.ContextConfig{LookbackSecs: 1800, LookaheadSecs: 1800},
		Correlator: config.CorrelatorConfig{
			MaxTemporalDistanceSecs: 300,
			MinEvidenceConfidence:   0.3,
			MaxEvidenceFrames:       10,
			TemporalDecayFactor:     0.5,
		},
		Summary:  config.SummaryConfig{MaxKeyEvents: 10},
		Pipeline: config.PipelineConfig{MaxConcurrentSessions: 4},
	}
}

func TestPipeline_EmptyInput(t *testing.T) {
	st := newMemStore()
	p := New(pipeCfg(), st, nil, nil)

	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Sessions)
	assert.Empty(t, result.Summaries)
	assert.NotEmpty(t, result.AnalysisID)
}

func TestPipeline_EndToEnd(t *testing.T) {
	// A ten-minute Safari form-filling burst with frame evidence and
	// surrounding workflow spans five minutes on either side.
	events := []model.ActivityEvent{
		{
			ID: "e1", Timestamp: segBase, Type: model.EventTypeFieldChange,
			Target: "vendor_name", Confidence: 0.9, EvidenceFrames: []string{"f1"},
			Metadata: map[string]string{model.MetadataKeyAppName: "Safari"},
		},
		{
			ID: "e2", Timestamp: segBase.Add(3 * time.Minute), Type: model.EventTypeFieldChange,
			Target: "vendor_address", Confidence: 0.85, EvidenceFrames: []string{"f2"},
			Metadata: map[string]string{model.MetadataKeyAppName: "Safari"},
		},
		{
			ID: "e3", Timestamp: segBase.Add(7 * time.Minute), Type: model.EventTypeFormSubmission,
			Target: "submit", Confidence: 0.95, EvidenceFrames: []string{"f3"},
			Metadata: map[string]string{model.MetadataKeyAppName: "Safari"},
		},
		{
			ID: "e4", Timestamp: segBase.Add(10 * time.Minute), Type: model.EventTypeNavigation,
			Target: "confirmation_page", Confidence: 0.8,
			Metadata: map[string]string{model.MetadataKeyAppName: "Safari"},
		},
	}
	frames := []model.FrameMetadata{
		{FrameID: "f1", Timestamp: segBase, ApplicationName: "Safari", OCRConfidence: ptr(0.92), ImageQuality: ptr(0.9)},
		{FrameID: "f2", Timestamp: segBase.Add(3 * time.Minute), ApplicationName: "Safari"},
		{FrameID: "f3", Timestamp: segBase.Add(7 * time.Minute), ApplicationName: "Safari", OCRConfidence: ptr(0.88)},
		{FrameID: "f4", Timestamp: segBase.Add(5 * time.Minute), ApplicationName: "Safari"},
	}
	spans := []model.Span{
		{Kind: "research", Title: "Vendor lookup in Safari", StartTime: segBase.Add(-15 * time.Minute), EndTime: segBase.Add(-5 * time.Minute)},
		{Kind: "review", Title: "Submission review", StartTime: segBase.Add(15 * time.Minute), EndTime: segBase.Add(25 * time.Minute)},
	}

	st := newMemStore()
	p := New(pipeCfg(), st, nil, nil)

	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		Events:    events,
		Frames:    frames,
		Spans:     spans,
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 1)
	require.Len(t, result.Summaries, 1)

	session := result.Sessions[0]
	assert.Equal(t, "Safari", session.PrimaryApplication)
	assert.Equal(t, model.SessionTypeFormFilling, session.SessionType)

	stored := result.Summaries[0]
	assert.True(t, stored.Summary.Context.WorkflowContinuity.IsPartOfLargerWorkflow)
	assert.Greater(t, stored.Summary.Context.WorkflowContinuity.ContinuityScore, 0.0)
	require.Len(t, stored.Summary.Context.PrecedingSpans, 1)
	require.Len(t, stored.Summary.Context.FollowingSpans, 1)

	assert.NoError(t, VerifyBidirectionalLinks(stored.Summary.ID, stored.Reference.BidirectionalLinks))
	assert.Equal(t, []string{"f1", "f2", "f3"}, stored.Reference.DirectEvidenceFrames)
	// Only the uncited frame correlates; directly cited frames never repeat.
	require.Len(t, stored.Reference.CorrelatedFrames, 1)
	assert.Equal(t, "f4", stored.Reference.CorrelatedFrames[0].FrameID)
	assert.NotEmpty(t, stored.Reference.ConfidencePropagation.ConfidenceFactors)

	assert.Equal(t, stored.Summary.ID, stored.Trace.SummaryID)
	assert.Greater(t, stored.Trace.TotalConfidence, 0.0)

	// The summary was persisted under its own ID.
	saved, err := st.GetSummary(context.Background(), stored.Summary.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)

	// Status progressed to complete's predecessor states and a result landed.
	analysis, err := st.GetAnalysis(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	require.NotNil(t, analysis.Result)
	assert.Contains(t, st.statuses, model.AnalysisStatusSegmenting)
	assert.Contains(t, st.statuses, model.AnalysisStatusContextualizing)
	assert.Contains(t, st.statuses, model.AnalysisStatusCorrelating)
	assert.Contains(t, st.statuses, model.AnalysisStatusScoring)
}

func TestPipeline_StoredSpansMerged(t *testing.T) {
	st := newMemStore()
	// A span already on record inside the context window.
	require.NoError(t, st.SaveSpans(context.Background(), []model.Span{
		{Kind: "research", Title: "Earlier research", StartTime: segBase.Add(-20 * time.Minute), EndTime: segBase.Add(-10 * time.Minute)},
	}))

	events := []model.ActivityEvent{
		evAt("e1", segBase, model.EventTypeFieldChange, "Safari"),
		evAt("e2", segBase.Add(2*time.Minute), model.EventTypeFieldChange, "Safari"),
		evAt("e3", segBase.Add(4*time.Minute), model.EventTypeFormSubmission, "Safari"),
	}

	p := New(pipeCfg(), st, nil, nil)
	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		Events:    events,
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)
	assert.Len(t, result.Summaries[0].Summary.Context.PrecedingSpans, 1)
}

func TestPipeline_RelatedSessionsAreSiblings(t *testing.T) {
	// Two bursts far apart produce two sessions that reference each other.
	var events []model.ActivityEvent
	for i := 0; i < 3; i++ {
		events = append(events, evAt("a"+string(rune('0'+i)), segBase.Add(time.Duration(i)*time.Minute), model.EventTypeFieldChange, "Safari"))
	}
	for i := 0; i < 3; i++ {
		events = append(events, evAt("b"+string(rune('0'+i)), segBase.Add(time.Hour).Add(time.Duration(i)*time.Minute), model.EventTypeDataEntry, "Numbers"))
	}

	st := newMemStore()
	p := New(pipeCfg(), st, nil, nil)
	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		Events:    events,
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)
	require.Len(t, result.Sessions, 2)
	require.Len(t, result.Summaries, 2)

	for _, stored := range result.Summaries {
		related := stored.Summary.Context.RelatedSessions
		require.Len(t, related, 1)
		assert.NotEqual(t, stored.Summary.Session.ID, related[0])
	}
}

func TestPipeline_SceneSignalPropagates(t *testing.T) {
	events := []model.ActivityEvent{
		evAt("e1", segBase, model.EventTypeFieldChange, "Safari"),
		evAt("e2", segBase.Add(2*time.Minute), model.EventTypeFieldChange, "Safari"),
		evAt("e3", segBase.Add(4*time.Minute), model.EventTypeFormSubmission, "Safari"),
	}
	frames := []model.FrameMetadata{
		{FrameID: "f1", Timestamp: segBase.Add(time.Minute), ApplicationName: "Safari"},
	}
	scene := func(frameID string) (float64, bool) { return 0.9, true }

	st := newMemStore()
	p := New(pipeCfg(), st, nil, scene)
	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		Events:    events,
		Frames:    frames,
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)

	require.NotEmpty(t, result.Summaries[0].Reference.CorrelatedFrames)
	assert.Contains(t,
		result.Summaries[0].Reference.CorrelatedFrames[0].CorrelationReasons,
		model.ReasonSceneTransition,
	)
}

func TestFormatAnalysisReport_Empty(t *testing.T) {
	out := FormatAnalysisReport(&model.AnalysisResult{AnalysisID: "a1"})
	assert.Contains(t, out, "a1")
	assert.Contains(t, out, "No sessions met the activity thresholds.")
}

func TestFormatAnalysisReport_WithSummary(t *testing.T) {
	st := newMemStore()
	p := New(pipeCfg(), st, nil, nil)
	events := []model.ActivityEvent{
		evAt("e1", segBase, model.EventTypeFieldChange, "Safari"),
		evAt("e2", segBase.Add(2*time.Minute), model.EventTypeFieldChange, "Safari"),
		evAt("e3", segBase.Add(4*time.Minute), model.EventTypeFormSubmission, "Safari"),
	}

	result, err := p.Analyze(context.Background(), model.AnalysisInput{
		Events:    events,
		TimeRange: fullDayRange(),
	})
	require.NoError(t, err)

	out := FormatAnalysisReport(result)
	assert.Contains(t, out, "Safari")
	assert.Contains(t, out, "Confidence:")
	assert.Contains(t, out, "Trace:")
}
