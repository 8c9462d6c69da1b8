package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sightglass/evidence-cli/internal/config"
	"github.com/sightglass/evidence-cli/internal/model"
	"github.com/sightglass/evidence-cli/internal/store"
)

// Pipeline orchestrates a full analysis: segment → context → summarize →
// correlate/graph → propagate → trace. Sessions are independent units of
// work and are processed in parallel; the engine stages themselves are pure
// and all persistence goes through the store.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	narrator Narrator
	scene    SceneTransitionSignal
}

// New creates a Pipeline. narrator and scene may be nil: narration falls
// back to PlainNarrator and the scene-transition signal contributes
// nothing.
func New(cfg *config.Config, st store.Store, narrator Narrator, scene SceneTransitionSignal) *Pipeline {
	if narrator == nil {
		narrator = PlainNarrator{}
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		narrator: narrator,
		scene:    scene,
	}
}

// Analyze runs the full pipeline over one input batch.
func (p *Pipeline) Analyze(ctx context.Context, input model.AnalysisInput) (*model.AnalysisResult, error) {
	log := zap.L().With(
		zap.Int("events", len(input.Events)),
		zap.Int("frames", len(input.Frames)),
	)
	log.Info("pipeline: starting analysis")

	analysis, err := p.store.CreateAnalysis(ctx, model.AnalysisParams{
		EventCount: len(input.Events),
		FrameCount: len(input.Frames),
		SpanCount:  len(input.Spans),
		TimeRange:  input.TimeRange,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create analysis")
	}

	result := &model.AnalysisResult{AnalysisID: analysis.ID}

	setStatus := func(status model.AnalysisStatus) {
		if statusErr := p.store.UpdateAnalysisStatus(ctx, analysis.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	var stagesMu sync.Mutex
	trackStage := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, fnErr := fn()
		stage := model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if fnErr != nil {
			stage.Status = model.StageStatusFailed
			stage.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Error(fnErr),
			)
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
			)
		}
		stagesMu.Lock()
		result.Stages = append(result.Stages, stage)
		stagesMu.Unlock()
		return fnErr
	}

	// ===== Stage 1: Segmentation =====
	setStatus(model.AnalysisStatusSegmenting)

	var sessions []model.ActivitySession
	_ = trackStage("segment", func() (map[string]any, error) {
		sessions = SegmentEvents(input.Events, input.TimeRange, p.cfg.Segmenter)
		return map[string]any{"sessions": len(sessions)}, nil
	})
	result.Sessions = sessions

	// Too little activity for any session is a normal, empty outcome.
	if len(sessions) == 0 {
		if saveErr := p.store.UpdateAnalysisResult(ctx, analysis.ID, result); saveErr != nil {
			log.Warn("pipeline: failed to save empty result", zap.Error(saveErr))
		}
		log.Info("pipeline: no sessions found")
		return result, nil
	}

	// ===== Stage 2: Span context =====
	setStatus(model.AnalysisStatusContextualizing)

	spans := input.Spans
	_ = trackStage("load_spans", func() (map[string]any, error) {
		storedSpans, spanErr := p.store.ListSpansInWindow(ctx, contextWindow(sessions, p.cfg.Context))
		if spanErr != nil {
			return nil, spanErr
		}
		spans = append(spans, storedSpans...)
		return map[string]any{"spans": len(spans)}, nil
	})

	// ===== Stages 3-5: per-session summarize, correlate, score, trace =====
	setStatus(model.AnalysisStatusCorrelating)

	allIDs := make([]string, len(sessions))
	for i, s := range sessions {
		allIDs[i] = s.ID
	}

	var summariesMu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	limit := p.cfg.Pipeline.MaxConcurrentSessions
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, session := range sessions {
		g.Go(func() error {
			return trackStage("session_"+session.ID, func() (map[string]any, error) {
				stored, sessionErr := p.analyzeSession(gCtx, analysis.ID, session, spans, input.Frames, siblingIDs(allIDs, session.ID))
				if sessionErr != nil {
					return nil, sessionErr
				}
				summariesMu.Lock()
				result.Summaries = append(result.Summaries, *stored)
				summariesMu.Unlock()
				return map[string]any{
					"summary_id":        stored.Summary.ID,
					"key_events":        len(stored.Summary.KeyEvents),
					"correlated_frames": len(stored.Reference.CorrelatedFrames),
					"confidence":        stored.Reference.ConfidencePropagation.SummaryConfidence.AggregatedConfidence,
				}, nil
			})
		})
	}

	setStatus(model.AnalysisStatusScoring)

	if waitErr := g.Wait(); waitErr != nil {
		// Only the internal graph-inconsistency class reaches here; it is
		// an implementation bug, so fail the whole analysis.
		setStatus(model.AnalysisStatusFailed)
		return result, eris.Wrap(waitErr, "pipeline: session analysis")
	}

	if saveErr := p.store.UpdateAnalysisResult(ctx, analysis.ID, result); saveErr != nil {
		log.Warn("pipeline: failed to save result", zap.Error(saveErr))
	}

	log.Info("pipeline: analysis complete",
		zap.String("analysis_id", analysis.ID),
		zap.Int("sessions", len(sessions)),
		zap.Int("summaries", len(result.Summaries)),
	)
	return result, nil
}

// analyzeSession runs the per-session stages and persists the summary
// envelope.
func (p *Pipeline) analyzeSession(ctx context.Context, analysisID string, session model.ActivitySession, spans []model.Span, frames []model.FrameMetadata, related []string) (*model.StoredSummary, error) {
	tctx := AnalyzeTemporalContext(session, spans, p.cfg.Context)
	tctx.RelatedSessions = related

	summary := BuildSummary(session, tctx, p.narrator, p.cfg.Summary)

	ref, err := BuildEvidenceReference(summary, frames, tctx.WorkflowContinuity.ContinuityScore, p.scene, p.cfg.Correlator)
	if err != nil {
		return nil, err
	}

	stored := model.StoredSummary{
		Summary:   summary,
		Reference: ref,
		Trace:     TraceEvidence(summary.ID, ref),
	}

	if saveErr := p.store.SaveSummary(ctx, analysisID, stored); saveErr != nil {
		zap.L().Warn("pipeline: failed to save summary",
			zap.String("summary_id", summary.ID),
			zap.Error(saveErr),
		)
	}
	return &stored, nil
}

// contextWindow returns the span-store query window covering every session
// plus the configured lookback/lookahead.
func contextWindow(sessions []model.ActivitySession, cfg config.ContextConfig) model.TimeRange {
	window := model.TimeRange{Start: sessions[0].StartTime, End: sessions[0].EndTime}
	for _, s := range sessions[1:] {
		if s.StartTime.Before(window.Start) {
			window.Start = s.StartTime
		}
		if s.EndTime.After(window.End) {
			window.End = s.EndTime
		}
	}
	window.Start = window.Start.Add(-cfg.Lookback())
	window.End = window.End.Add(cfg.Lookahead())
	return window
}

func siblingIDs(ids []string, self string) []string {
	var out []string
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
