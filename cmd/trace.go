package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sightglass/evidence-cli/internal/engine"
	"github.com/sightglass/evidence-cli/internal/model"
)

var traceCmd = &cobra.Command{
	Use:   "trace <summary-id>",
	Short: "Reconstruct the evidence trace for a stored summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stored, err := st.GetSummary(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "trace")
		}
		if stored == nil {
			fmt.Fprintf(os.Stderr, "No summary found with ID %s.\n", args[0])
			return nil
		}

		trace := engine.TraceEvidence(args[0], stored.Reference)
		formatTrace(os.Stdout, trace)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

// formatTrace writes the trace path in graph order, summary first.
func formatTrace(out io.Writer, trace model.EvidenceTrace) {
	verdict := "incomplete"
	if trace.TraceComplete {
		verdict = "complete"
	}
	fmt.Fprintf(out, "Summary %s: trace %s, total confidence %.2f\n\n",
		trace.SummaryID, verdict, trace.TotalConfidence)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEVEL\tTYPE\tREFERENCE\tCONFIDENCE")
	_, _ = fmt.Fprintln(w, "-----\t----\t---------\t----------")
	for _, step := range trace.TracePath {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n",
			step.Level, step.EvidenceType, step.ReferenceID, step.Confidence)
	}
	_ = w.Flush()
}
