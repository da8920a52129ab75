// Package metrics provides Prometheus instrumentation for the Sentra engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsScoredTotal counts scored transactions by risk category.
	TransactionsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "transactions_scored_total",
			Help:      "Total transactions scored by risk category.",
		},
		[]string{"category"},
	)

	// FraudFlaggedTotal counts transactions flagged as fraud.
	FraudFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sentra",
		Name:      "fraud_flagged_total",
		Help:      "Total transactions flagged as fraud.",
	})

	// RiskScore observes the distribution of aggregate risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sentra",
		Name:      "risk_score",
		Help:      "Distribution of aggregate risk scores (0-100).",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// SignalFailuresTotal counts signal provider failures by signal name.
	SignalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "signal_failures_total",
			Help:      "Total signal provider failures (degraded to zero contribution).",
		},
		[]string{"signal"},
	)

	// AlertsCreatedTotal counts alerts created by alert type.
	AlertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "alerts_created_total",
			Help:      "Total fraud alerts created by alert type.",
		},
		[]string{"alert_type"},
	)

	// AlertTransitionsTotal counts alert status transitions by target status.
	AlertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "alert_transitions_total",
			Help:      "Total alert status transitions by target status.",
		},
		[]string{"status"},
	)

	// ProfileRefreshTotal counts behavioral profile refreshes by result.
	ProfileRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "profile_refresh_total",
			Help:      "Total behavioral profile refreshes by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket subscribers.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket subscribers.",
		},
	)

	// BroadcastDroppedTotal counts alert events dropped during fan-out.
	BroadcastDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sentra",
		Name:      "broadcast_dropped_total",
		Help:      "Total alert events dropped because a subscriber or the hub was saturated.",
	})

	// WebhookDeliveriesTotal counts webhook delivery attempts by result.
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "webhook_deliveries_total",
			Help:      "Total webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsScoredTotal,
		FraudFlaggedTotal,
		RiskScore,
		SignalFailuresTotal,
		AlertsCreatedTotal,
		AlertTransitionsTotal,
		ProfileRefreshTotal,
		ActiveWebSocketClients,
		BroadcastDroppedTotal,
		WebhookDeliveriesTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
