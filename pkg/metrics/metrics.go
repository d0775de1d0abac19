package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "video_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	dbQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "video_db_query_duration_seconds",
		Help:    "Database query latency by operation and table",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation", "table"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_webhook_events_total",
		Help: "Provider webhook deliveries by event type and outcome",
	}, []string{"type", "outcome"})

	broadcastDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "video_broadcast_deliveries_total",
		Help: "Lesson update events delivered to live subscribers",
	})

	activeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "video_updates_subscribers",
		Help: "Currently connected course updates subscribers",
	})

	quotaDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_quota_decisions_total",
		Help: "View quota checks by outcome",
	}, []string{"outcome"})

	tokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "video_tokens_issued_total",
		Help: "Signed playback and thumbnail tokens issued",
	}, []string{"kind"})
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation, table string, elapsed time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
}

// RecordWebhookEvent records a provider webhook delivery outcome.
// Outcome is one of: applied, duplicate, ignored, uncorrelated, malformed, error.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordBroadcastDeliveries adds n delivered lesson update events.
func RecordBroadcastDeliveries(n int) {
	broadcastDeliveriesTotal.Add(float64(n))
}

// SetActiveSubscribers updates the live subscriber gauge.
func SetActiveSubscribers(n int) {
	activeSubscribers.Set(float64(n))
}

// RecordQuotaDecision records a granted or denied view reservation.
func RecordQuotaDecision(granted bool) {
	outcome := "denied"
	if granted {
		outcome = "granted"
	}
	quotaDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued records an issued playback or thumbnail token.
func RecordTokenIssued(kind string) {
	tokensIssuedTotal.WithLabelValues(kind).Inc()
}
