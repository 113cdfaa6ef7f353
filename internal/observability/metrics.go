package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "till_cart_mutations_total",
			Help: "Cart mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "till_submissions_total",
			Help: "Check submissions by outcome",
		},
		[]string{"outcome"},
	)

	SubmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "till_submission_duration_seconds",
			Help:    "Duration of check submissions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "till_http_requests_total",
			Help: "Console API requests",
		},
		[]string{"route", "method", "status_code"},
	)
)

func RecordCartMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CartMutationsTotal.WithLabelValues(operation, result).Inc()
}

func RecordSubmission(outcome string, started time.Time) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
	SubmissionDuration.Observe(time.Since(started).Seconds())
}

func RecordHTTPRequest(route, method, statusCode string) {
	HTTPRequestsTotal.WithLabelValues(route, method, statusCode).Inc()
}
