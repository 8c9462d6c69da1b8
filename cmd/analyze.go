package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sightglass/evidence-cli/internal/engine"
	"github.com/sightglass/evidence-cli/internal/model"
)

var (
	analyzeEventsPath string
	analyzeFramesPath string
	analyzeSpansPath  string
	analyzeFrom       string
	analyzeTo         string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline over telemetry files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		events, err := loadEvents(analyzeEventsPath)
		if err != nil {
			return err
		}

		var frames []model.FrameMetadata
		if analyzeFramesPath != "" {
			if frames, err = loadFrames(analyzeFramesPath); err != nil {
				return err
			}
		}

		var spans []model.Span
		if analyzeSpansPath != "" {
			if spans, err = loadSpans(analyzeSpansPath); err != nil {
				return err
			}
		}

		timeRange, err := resolveTimeRange(analyzeFrom, analyzeTo, events)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pipeline := engine.New(cfg, st, nil, nil)
		result, err := pipeline.Analyze(ctx, model.AnalysisInput{
			Events:    events,
			Frames:    frames,
			Spans:     spans,
			TimeRange: timeRange,
		})
		if err != nil {
			return err
		}

		fmt.Print(engine.FormatAnalysisReport(result))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeEventsPath, "events", "", "path to events JSON file (required)")
	analyzeCmd.Flags().StringVar(&analyzeFramesPath, "frames", "", "path to frame metadata JSON file")
	analyzeCmd.Flags().StringVar(&analyzeSpansPath, "spans", "", "path to spans file (JSON or YAML)")
	analyzeCmd.Flags().StringVar(&analyzeFrom, "from", "", "analysis window start (RFC3339), defaults to first event")
	analyzeCmd.Flags().StringVar(&analyzeTo, "to", "", "analysis window end (RFC3339), defaults to last event")
	_ = analyzeCmd.MarkFlagRequired("events")
	rootCmd.AddCommand(analyzeCmd)
}

func loadEvents(path string) ([]model.ActivityEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read events %s", path)
	}
	var events []model.ActivityEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, eris.Wrapf(err, "parse events %s", path)
	}
	return events, nil
}

func loadFrames(path string) ([]model.FrameMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read frames %s", path)
	}
	var frames []model.FrameMetadata
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, eris.Wrapf(err, "parse frames %s", path)
	}
	return frames, nil
}

// loadSpans accepts JSON or YAML span files, selected by extension.
func loadSpans(path string) ([]model.Span, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read spans %s", path)
	}

	var spans []model.Span
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &spans); err != nil {
			return nil, eris.Wrapf(err, "parse spans %s", path)
		}
	default:
		if err := json.Unmarshal(data, &spans); err != nil {
			return nil, eris.Wrapf(err, "parse spans %s", path)
		}
	}
	return spans, nil
}

// resolveTimeRange parses the --from/--to flags, defaulting each missing
// bound to the corresponding extreme of the event stream.
func resolveTimeRange(from, to string, events []model.ActivityEvent) (model.TimeRange, error) {
	var tr model.TimeRange

	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return tr, eris.Wrapf(err, "parse --from %s", from)
		}
		tr.Start = t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return tr, eris.Wrapf(err, "parse --to %s", to)
		}
		tr.End = t
	}

	for _, e := range events {
		if tr.Start.IsZero() && from == "" {
			tr.Start = e.Timestamp
		}
		if from == "" && e.Timestamp.Before(tr.Start) {
			tr.Start = e.Timestamp
		}
		if to == "" && e.Timestamp.After(tr.End) {
			tr.End = e.Timestamp
		}
	}

	if tr.End.Before(tr.Start) {
		return tr, eris.New("time range end precedes start")
	}
	return tr, nil
}
