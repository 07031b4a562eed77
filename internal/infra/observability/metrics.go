package observability

import (
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Turn routes, one per orchestrator exit.
const (
	RouteShortcut = "shortcut"
	RouteConfirm  = "confirm"
	RouteIntent   = "intent"
	RouteFallback = "fallback"
	RouteError    = "error"
)

var allRoutes = []string{RouteShortcut, RouteConfirm, RouteIntent, RouteFallback, RouteError}

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	turns           *prometheus.CounterVec
	intents         *prometheus.CounterVec
	shortcutHits    *prometheus.CounterVec
	oracleErrors    *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	partialWrites   prometheus.Counter
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speedauto_request_duration_seconds",
				Help:    "Duration of operations (turns, oracle calls, store calls).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_chat_turns_total",
				Help: "Chat turns by the route that produced the answer.",
			},
			[]string{"route"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_chat_intents_total",
				Help: "Classified intents.",
			},
			[]string{"intent"},
		),
		shortcutHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_chat_shortcut_hits_total",
				Help: "Retrieval shortcut rules that answered a turn.",
			},
			[]string{"rule"},
		),
		oracleErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_oracle_errors_total",
				Help: "Language model errors by status code.",
			},
			[]string{"status"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		partialWrites: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "speedauto_sale_partial_writes_total",
				Help: "Sales inserted whose vehicle status update failed.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speedauto_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTurn counts a finished turn under the route that answered it.
func (m *Metrics) IncrTurn(route string) {
	m.turns.WithLabelValues(route).Inc()
}

// IncrIntent counts a classification result.
func (m *Metrics) IncrIntent(intent string) {
	m.intents.WithLabelValues(intent).Inc()
}

// IncrShortcutHit counts a shortcut rule answer.
func (m *Metrics) IncrShortcutHit(rule string) {
	m.shortcutHits.WithLabelValues(rule).Inc()
}

// IncrOracleError counts a language model failure.
func (m *Metrics) IncrOracleError(status string) {
	m.oracleErrors.WithLabelValues(status).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrPartialWrite counts a sale left without its vehicle status update.
func (m *Metrics) IncrPartialWrite() {
	m.partialWrites.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// GetChatbotSnapshot returns a snapshot of chatbot metrics suitable for the
// GET /v1/metrics/chatbot endpoint.
func (m *Metrics) GetChatbotSnapshot() *domain.ChatbotMetrics {
	byRoute := make(map[string]int64, len(allRoutes))
	var total float64
	for _, r := range allRoutes {
		v := getCounterValue(m.turns, r)
		byRoute[r] = int64(v)
		total += v
	}

	snap := &domain.ChatbotMetrics{
		TotalTurns:       int64(total),
		TurnsByRoute:     byRoute,
		IntentCounts:     collectCounterVec(m.intents),
		OracleErrors:     collectCounterVec(m.oracleErrors),
		ExternalErrors:   collectCounterVec(m.externalErrors),
		PartialWrites:    int64(counterValue(m.partialWrites)),
		PromptTokens:     int64(getCounterValue(m.tokensUsed, "prompt")),
		CompletionTokens: int64(getCounterValue(m.tokensUsed, "completion")),
		AvgLatencyMs:     averageLatencies(m.requestDuration),
		Period:           "all_time",
	}

	if total > 0 {
		snap.ShortcutHitRate = float64(byRoute[RouteShortcut]) / total
		snap.FallbackRate = float64(byRoute[RouteFallback]) / total
		snap.ErrorRate = float64(byRoute[RouteError]) / total
	}

	hits := getCounterValue(m.cacheHits, "memory")
	misses := getCounterValue(m.cacheMisses, "memory")
	if hits+misses > 0 {
		snap.CacheHitRate = hits / (hits + misses)
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// collectCounterVec flattens a single-label CounterVec into label → value.
func collectCounterVec(cv *prometheus.CounterVec) map[string]int64 {
	out := map[string]int64{}
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		if len(m.Label) == 0 {
			continue
		}
		out[m.Label[0].GetValue()] = int64(m.Counter.GetValue())
	}
	return out
}

// averageLatencies returns mean duration in milliseconds per operation.
func averageLatencies(hv *prometheus.HistogramVec) map[string]float64 {
	out := map[string]float64{}
	ch := make(chan prometheus.Metric)
	go func() {
		hv.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Histogram == nil || len(m.Label) == 0 {
			continue
		}
		count := m.Histogram.GetSampleCount()
		if count == 0 {
			continue
		}
		out[m.Label[0].GetValue()] = m.Histogram.GetSampleSum() / float64(count) * 1000
	}
	return out
}
