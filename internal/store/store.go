package store

import (
	"context"

	"github.com/sightglass/evidence-cli/internal/model"
)

// AnalysisFilter specifies criteria for listing analysis runs.
type AnalysisFilter struct {
	Status model.AnalysisStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the evidence engine. The
// engine itself performs no I/O; the store is the caller-side layer that
// keeps analysis runs, summaries with their evidence graphs, and the
// append-only span records.
type Store interface {
	// Analyses
	CreateAnalysis(ctx context.Context, params model.AnalysisParams) (*model.Analysis, error)
	UpdateAnalysisStatus(ctx context.Context, analysisID string, status model.AnalysisStatus) error
	UpdateAnalysisResult(ctx context.Context, analysisID string, result *model.AnalysisResult) error
	GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error)

	// Summaries and their evidence graphs
	SaveSummary(ctx context.Context, analysisID string, stored model.StoredSummary) error
	GetSummary(ctx context.Context, summaryID string) (*model.StoredSummary, error)
	ListSummaries(ctx context.Context, analysisID string) ([]model.StoredSummary, error)

	// Workflow spans (append-only)
	SaveSpans(ctx context.Context, spans []model.Span) error
	ListSpansInWindow(ctx context.Context, window model.TimeRange) ([]model.Span, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
