// Package metrics records companion turn outcomes as Prometheus series on a private registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbright/olivia/internal/llm"
)

const (
	namespace           = "olivia"
	readHeaderTimeout   = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
	tokenTypePrompt     = "prompt"
	tokenTypeCompletion = "completion"
)

// stageBuckets spans fast guard calls up to long listens.
var stageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Recorder owns every olivia series. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	repairActions  *prometheus.CounterVec
	nonfluency     *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	llmCost        *prometheus.CounterVec
	parrotingFixed prometheus.Counter
	turnFailures   *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by dialogue act.",
		}, []string{"act"}),
		repairActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_actions_total",
			Help:      "Repair classifier decisions by action.",
		}, []string{"action"}),
		nonfluency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonfluency_total",
			Help:      "Nonfluency labels assigned to user turns.",
		}, []string{"label"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of each turn stage.",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Generation tokens by model and type.",
		}, []string{"model", "type"}),
		llmCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated generation spend in USD.",
		}, []string{"model"}),
		parrotingFixed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parroting_fixed_total",
			Help:      "Replies rewritten by the anti-parroting guard.",
		}),
		turnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_failures_total",
			Help:      "Turns abandoned because a collaborator failed, by stage.",
		}, []string{"stage"}),
	}

	r.registry.MustRegister(
		r.turns,
		r.repairActions,
		r.nonfluency,
		r.stageDuration,
		r.llmTokens,
		r.llmCost,
		r.parrotingFixed,
		r.turnFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Turn(act string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(act).Inc()
}

func (r *Recorder) RepairAction(action string) {
	if r == nil {
		return
	}
	r.repairActions.WithLabelValues(action).Inc()
}

func (r *Recorder) Nonfluency(label string) {
	if r == nil {
		return
	}
	r.nonfluency.WithLabelValues(label).Inc()
}

func (r *Recorder) StageDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Usage adds token and cost counters. Empty usage is ignored.
func (r *Recorder) Usage(u llm.Usage) {
	if r == nil || u.IsZero() {
		return
	}
	model := u.Model
	if model == "" {
		model = "unknown"
	}
	r.llmTokens.WithLabelValues(model, tokenTypePrompt).Add(float64(u.PromptTokens))
	r.llmTokens.WithLabelValues(model, tokenTypeCompletion).Add(float64(u.CompletionTokens))
	if u.USDEstimate > 0 {
		r.llmCost.WithLabelValues(model).Add(u.USDEstimate)
	}
}

func (r *Recorder) ParrotingFixed() {
	if r == nil {
		return
	}
	r.parrotingFixed.Inc()
}

func (r *Recorder) TurnFailure(stage string) {
	if r == nil {
		return
	}
	r.turnFailures.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %q: %w", addr, err)
	}
	return r.serve(ctx, ln)
}

func (r *Recorder) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
