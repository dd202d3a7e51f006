package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submissionsTotal counts admission outcomes.
	// Labels:
	// - kind:   "mail" or "notification"
	// - result: "accepted", "invalid_payload", "quota_daily", "quota_monthly", "store_error"
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "queue",
			Name:      "submissions_total",
			Help:      "Number of submissions by admission outcome",
		},
		[]string{"kind", "result"},
	)

	// deliveriesTotal counts worker delivery outcomes.
	// Labels:
	// - kind:    "mail" or "notification"
	// - outcome: "delivered", "retried", "failed"
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "worker",
			Name:      "deliveries_total",
			Help:      "Number of delivery attempts by terminal outcome",
		},
		[]string{"kind", "outcome"},
	)

	// leaseRequeues counts jobs returned to waiting by the lease sweeper.
	leaseRequeues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "worker",
			Name:      "lease_requeues_total",
			Help:      "Number of expired-lease active jobs requeued by the sweeper",
		},
		[]string{"kind"},
	)

	// queueDepth reports the last observed per-state job counts.
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Jobs per lifecycle state (snapshot)",
		},
		[]string{"kind", "state"},
	)
)

// IncSubmission increments the admission outcome counter.
func IncSubmission(kind, result string) {
	if result == "" {
		result = "unknown"
	}
	submissionsTotal.WithLabelValues(kind, result).Inc()
}

// IncDelivery increments the delivery outcome counter.
func IncDelivery(kind, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	deliveriesTotal.WithLabelValues(kind, outcome).Inc()
}

// AddLeaseRequeues adds to the sweeper requeue counter.
func AddLeaseRequeues(kind string, n int) {
	if n <= 0 {
		return
	}
	leaseRequeues.WithLabelValues(kind).Add(float64(n))
}

// SetQueueDepth records a stats snapshot for one kind.
func SetQueueDepth(kind string, waiting, active, completed, failed int64) {
	queueDepth.WithLabelValues(kind, "waiting").Set(float64(waiting))
	queueDepth.WithLabelValues(kind, "active").Set(float64(active))
	queueDepth.WithLabelValues(kind, "completed").Set(float64(completed))
	queueDepth.WithLabelValues(kind, "failed").Set(float64(failed))
}
