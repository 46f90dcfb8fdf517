package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	analystRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analystchat_analyst_requests_total",
			Help: "Total number of requests sent to the analyst service by outcome.",
		},
		[]string{"outcome"},
	)
	analystRequestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analystchat_analyst_request_duration_seconds",
			Help:    "Analyst service round-trip latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analystchat_sql_executions_total",
			Help: "Total number of analyst SQL statements executed by outcome.",
		},
		[]string{"outcome"},
	)
	sqlExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analystchat_sql_execution_duration_seconds",
			Help:    "SQL execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sessionResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analystchat_session_resets_total",
			Help: "Total number of conversation resets.",
		},
	)
	suggestionsSelectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analystchat_suggestions_selected_total",
			Help: "Total number of follow-up suggestions selected.",
		},
	)
	renderCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analystchat_render_cache_hits_total",
			Help: "Total number of SQL results served from the render cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		analystRequestsTotal,
		analystRequestDurationSeconds,
		sqlExecutionsTotal,
		sqlExecutionDurationSeconds,
		sessionResetsTotal,
		suggestionsSelectedTotal,
		renderCacheHitsTotal,
	)
}

func ObserveAnalystRequest(err error, elapsed time.Duration) {
	analystRequestsTotal.WithLabelValues(outcome(err)).Inc()
	analystRequestDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveSQLExecution(err error, elapsed time.Duration) {
	sqlExecutionsTotal.WithLabelValues(outcome(err)).Inc()
	sqlExecutionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementSessionReset() {
	sessionResetsTotal.Inc()
}

func IncrementSuggestionSelected() {
	suggestionsSelectedTotal.Inc()
}

func IncrementRenderCacheHit() {
	renderCacheHitsTotal.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
