package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var spansCmd = &cobra.Command{
	Use:   "spans",
	Short: "Manage workflow span records",
}

var spansImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import workflow spans from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		spans, err := loadSpans(args[0])
		if err != nil {
			return err
		}
		if len(spans) == 0 {
			fmt.Fprintln(os.Stderr, "No spans found in file.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveSpans(ctx, spans); err != nil {
			return eris.Wrap(err, "spans import")
		}

		fmt.Printf("Imported %d spans.\n", len(spans))
		return nil
	},
}

var spansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spans overlapping a time window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		window, err := resolveTimeRange(from, to, nil)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		spans, err := st.ListSpansInWindow(ctx, window)
		if err != nil {
			return eris.Wrap(err, "spans list")
		}

		if len(spans) == 0 {
			fmt.Fprintln(os.Stderr, "No spans found.")
			return nil
		}
		for _, s := range spans {
			fmt.Printf("%s  [%s .. %s]  %s\n",
				s.Kind, s.StartTime.Format("15:04:05"), s.EndTime.Format("15:04:05"), s.Title)
		}
		return nil
	},
}

func init() {
	spansListCmd.Flags().String("from", "", "window start (RFC3339)")
	spansListCmd.Flags().String("to", "", "window end (RFC3339)")
	_ = spansListCmd.MarkFlagRequired("from")
	_ = spansListCmd.MarkFlagRequired("to")

	spansCmd.AddCommand(spansImportCmd)
	spansCmd.AddCommand(spansListCmd)
	rootCmd.AddCommand(spansCmd)
}
