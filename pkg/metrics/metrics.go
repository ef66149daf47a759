// Package metrics records orchestration outcomes with Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr     string `envconfig:"ADDR"`
	Endpoint string `envconfig:"ENDPOINT" default:"/metrics"`
}

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	iterations       *prometheus.HistogramVec
	toolCallsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_runs_total",
				Help: "Orchestration runs by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		iterations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_run_iterations",
				Help:    "Decision rounds used per run",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 16},
			},
			[]string{"role"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_tool_calls_total",
				Help: "Proposed actions by tool and observation kind",
			},
			[]string{"tool", "kind"},
		),
		decisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_decision_duration_seconds",
				Help:    "Latency of decision-maker calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

func (r *Recorder) ObserveRun(role, outcome string, iterations int) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(role, outcome).Inc()
	r.iterations.WithLabelValues(role).Observe(float64(iterations))
}

func (r *Recorder) ObserveTool(tool, kind string) {
	if r == nil {
		return
	}
	r.toolCallsTotal.WithLabelValues(tool, kind).Inc()
}

func (r *Recorder) ObserveDecision(d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.decisionDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Serve exposes gatherer on cfg.Addr until ctx is done. An empty address
// disables the endpoint.
func Serve(ctx context.Context, cfg Config, gatherer prometheus.Gatherer) error {
	if cfg.Addr == "" {
		return nil
	}
	path := cfg.Endpoint
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Addr).Str("path", path).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
