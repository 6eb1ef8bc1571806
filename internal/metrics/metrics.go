package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creditd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditd_operations_total",
			Help: "Total number of balance engine operations",
		},
		[]string{"operation", "status"},
	)

	CreditsDeductedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditd_credits_deducted_total",
			Help: "Total credits deducted, by action",
		},
		[]string{"action"},
	)

	CreditsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creditd_credits_granted_total",
			Help: "Total credits granted through purchases, admin grants, and refreshes",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordOperation(operation, status string) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
}

func RecordDeduction(action string, amount int64) {
	CreditsDeductedTotal.WithLabelValues(action).Add(float64(amount))
}

func RecordGrant(amount int64) {
	CreditsGrantedTotal.Add(float64(amount))
}
