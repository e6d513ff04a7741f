package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the delivery queue and workers.
var (
	JobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_jobs_enqueued_total",
			Help: "Total number of notification jobs enqueued",
		},
	)

	JobsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_jobs_delivered_total",
			Help: "Total number of notification jobs delivered",
		},
	)

	DeliveryFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		},
	)

	JobsExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_jobs_exhausted_total",
			Help: "Total number of jobs that ran out of attempts",
		},
	)

	InvoicesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoices_expired_total",
			Help: "Total number of invoices expired by the sweep",
		},
	)

	StuckJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_jobs_stuck",
			Help: "Jobs whose lease expired without resolving to a terminal state",
		},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Duration of delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsDeliveredTotal)
	prometheus.MustRegister(DeliveryFailuresTotal)
	prometheus.MustRegister(JobsExhaustedTotal)
	prometheus.MustRegister(InvoicesExpiredTotal)
	prometheus.MustRegister(StuckJobs)
	prometheus.MustRegister(DeliveryDuration)
}
