// Package telemetry implements the orchestrator metrics contract on
// Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

type Metrics struct {
	modelTurns      *prometheus.CounterVec
	modelLatency    *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
	resourceReads   *prometheus.CounterVec
	resourceLatency prometheus.Histogram
	promptFetches   *prometheus.CounterVec
	promptLatency   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		modelTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpchat_model_turns_total",
			Help: "Model turns by model and outcome.",
		}, []string{"model", "outcome"}),
		modelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpchat_model_turn_seconds",
			Help:    "Model turn latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpchat_tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpchat_tool_call_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		resourceReads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpchat_resource_reads_total",
			Help: "Resource reads by outcome.",
		}, []string{"outcome"}),
		resourceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcpchat_resource_read_seconds",
			Help:    "Resource read latency.",
			Buckets: prometheus.DefBuckets,
		}),
		promptFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpchat_prompt_fetches_total",
			Help: "Prompt fetches by outcome.",
		}, []string{"outcome"}),
		promptLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcpchat_prompt_fetch_seconds",
			Help:    "Prompt fetch latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveModelTurn(model string, d time.Duration, err error) {
	m.modelTurns.WithLabelValues(model, outcome(err)).Inc()
	m.modelLatency.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObserveToolCall(tool string, d time.Duration, err error) {
	m.toolCalls.WithLabelValues(tool, outcome(err)).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveResourceRead(d time.Duration, err error) {
	m.resourceReads.WithLabelValues(outcome(err)).Inc()
	m.resourceLatency.Observe(d.Seconds())
}

func (m *Metrics) ObservePromptFetch(d time.Duration, err error) {
	m.promptFetches.WithLabelValues(outcome(err)).Inc()
	m.promptLatency.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}

// ServeMetrics exposes /metrics on the given address until the context
// is canceled. Serving errors are logged, never fatal.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) {
	if addr == "" {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server failed", zap.Error(err))
		}
	}()
}
