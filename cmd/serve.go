package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sightglass/evidence-cli/internal/engine"
	"github.com/sightglass/evidence-cli/internal/model"
	"github.com/sightglass/evidence-cli/internal/store"
)

var servePort int

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for analysis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipeline := engine.New(cfg, st, nil, nil)
		limiter := rate.NewLimiter(rate.Limit(cfg.Server.AnalyzeRateLimit), cfg.Server.AnalyzeBurst)

		mux := buildMux(ctx, pipeline, st, limiter)
		return startServer(ctx, mux, resolvePort(servePort, cfg.Server.Port))
	},
}

// buildMux wires the HTTP routes. A nil limiter disables rate limiting.
func buildMux(ctx context.Context, pipeline *engine.Pipeline, st store.Store, limiter *rate.Limiter) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/analyze", func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow() {
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		var input model.AnalysisInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if len(input.Events) == 0 {
			http.Error(w, `{"error":"events are required"}`, http.StatusBadRequest)
			return
		}

		// Run the analysis asynchronously
		go func() {
			result, err := pipeline.Analyze(ctx, input)
			if err != nil {
				zap.L().Error("webhook analysis failed", zap.Error(err))
				return
			}
			zap.L().Info("webhook analysis complete",
				zap.String("analysis_id", result.AnalysisID),
				zap.Int("sessions", len(result.Sessions)),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
		})
	})

	mux.HandleFunc("GET /analyses/{id}", func(w http.ResponseWriter, r *http.Request) {
		analysis, err := st.GetAnalysis(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, `{"error":"analysis not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analysis)
	})

	mux.HandleFunc("GET /summaries/{id}/trace", func(w http.ResponseWriter, r *http.Request) {
		stored, err := st.GetSummary(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
			return
		}
		if stored == nil {
			http.Error(w, `{"error":"summary not found"}`, http.StatusNotFound)
			return
		}
		trace := engine.TraceEvidence(r.PathValue("id"), stored.Reference)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(trace)
	})

	return mux
}

func resolvePort(flagPort, configPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return configPort
}

// startServer serves mux until ctx is canceled, then drains in-flight
// requests for up to shutdownTimeout before returning.
func startServer(ctx context.Context, mux *http.ServeMux, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	// ErrServerClosed only follows Shutdown; wait for the drain to finish.
	<-done
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
