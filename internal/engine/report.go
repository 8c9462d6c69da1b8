package engine

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sightglass/evidence-cli/internal/model"
)

// FormatAnalysisReport renders a plain-text operational report of one
// analysis run: segmentation counts, per-summary confidence, contributing
// factors, and trace verdicts. This is run observability output, not the
// narrative rendering stage (which lives outside the engine).
func FormatAnalysisReport(result *model.AnalysisResult) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("ANALYSIS REPORT\n")
	b.WriteString("===============\n")
	p.Fprintf(&b, "Analysis:  %s\n", result.AnalysisID)
	p.Fprintf(&b, "Sessions:  %d\n", len(result.Sessions))
	p.Fprintf(&b, "Summaries: %d\n\n", len(result.Summaries))

	for i, stored := range result.Summaries {
		s := stored.Summary
		prop := stored.Reference.ConfidencePropagation

		p.Fprintf(&b, "Session %d: %s [%s]\n", i+1, s.Session.PrimaryApplication, s.Session.SessionType)
		p.Fprintf(&b, "  Window:     %s – %s (%d events)\n",
			s.Session.StartTime.Format("15:04:05"),
			s.Session.EndTime.Format("15:04:05"),
			len(s.Session.Events),
		)
		p.Fprintf(&b, "  Narrative:  %s\n", s.Narrative)
		p.Fprintf(&b, "  Evidence:   %d direct frames, %d correlated frames\n",
			len(stored.Reference.DirectEvidenceFrames),
			len(stored.Reference.CorrelatedFrames),
		)
		p.Fprintf(&b, "  Confidence: %.2f\n", prop.SummaryConfidence.AggregatedConfidence)

		for _, f := range prop.ConfidenceFactors {
			sign := "+"
			if f.Impact < 0 {
				sign = "-"
			}
			fmt.Fprintf(&b, "    [%s] %s: %s (%.2f)\n", sign, f.Name, f.Description, f.Impact)
		}

		verdict := "incomplete"
		if stored.Trace.TraceComplete {
			verdict = "complete"
		}
		p.Fprintf(&b, "  Trace:      %s, %d steps, total confidence %.2f\n\n",
			verdict, len(stored.Trace.TracePath), stored.Trace.TotalConfidence)
	}

	if len(result.Summaries) == 0 {
		b.WriteString("No sessions met the activity thresholds.\n")
	}

	return b.String()
}
