// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainflow"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-tenant rate limiter",
		},
	)

	routesOptimized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "routes_optimized_total",
			Help:      "Routes planned, by priority",
		},
		[]string{"priority"},
	)

	fraudAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "fraud_assessments_total",
			Help:      "Fraud assessments, by risk level and degraded flag",
		},
		[]string{"risk_level", "degraded"},
	)

	trustScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "trust_score",
			Help:      "Distribution of supplier trust scores",
			Buckets:   []float64{50, 60, 70, 75, 80, 85, 90, 95, 100},
		},
	)

	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "verifications_total",
			Help:      "Verification decisions, by status",
		},
		[]string{"status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one served request. route is the chi route pattern.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RateLimited counts a rejected request.
func RateLimited() {
	rateLimited.Inc()
}

// RouteOptimized counts a planned route.
func RouteOptimized(r *domain.RouteResult) {
	routesOptimized.WithLabelValues(string(r.Priority)).Inc()
}

// FraudAssessed counts a fraud assessment.
func FraudAssessed(a *domain.FraudAssessment) {
	fraudAssessments.WithLabelValues(string(a.RiskLevel), strconv.FormatBool(a.Degraded)).Inc()
}

// TrustAssessed records a trust score.
func TrustAssessed(a *domain.TrustAssessment) {
	trustScores.Observe(a.Score)
}

// Verified counts a verification decision and its component assessments.
func Verified(v *domain.Verification) {
	verifications.WithLabelValues(v.Status).Inc()
	if v.Trust != nil {
		TrustAssessed(v.Trust)
	}
	if v.Fraud != nil {
		FraudAssessed(v.Fraud)
	}
	if v.Route != nil {
		RouteOptimized(v.Route)
	}
}
