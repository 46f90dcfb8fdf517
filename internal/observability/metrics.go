package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/analystchat/analystchat/internal/config"
)

// HTTP series are labelled by ServeMux pattern, never by raw path, so a
// session id cannot become a label value.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analystchat_http_requests_total",
			Help: "Chat API requests by route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "analystchat_http_request_duration_seconds",
			Help: "Chat API latency by route pattern. Message routes include the analyst round trip.",
			// Question routes wait on the analyst service, which can take tens of seconds.
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"method", "route", "status"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analystchat_http_requests_in_flight",
			Help: "Chat API requests currently being served.",
		},
	)

	deploymentInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analystchat_deployment_info",
			Help: "Constant 1, labelled with the warehouse engine, session backend and archive setting.",
		},
		[]string{"warehouse_engine", "session_backend", "archive_enabled"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpRequestsInFlight, deploymentInfo)
}

// RecordDeployment publishes the configured backends as an info series.
func RecordDeployment(cfg config.Config) {
	deploymentInfo.Reset()
	archive := "false"
	if cfg.Archive.Enabled {
		archive = "true"
	}
	deploymentInfo.WithLabelValues(cfg.Warehouse.Engine, cfg.Session.Backend, archive).Set(1)
}
