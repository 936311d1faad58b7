// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"edustatus/internal/apperr"
)

var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edustatus_logins_total",
		Help: "Login attempts by role and result.",
	}, []string{"role", "result"})

	Signups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edustatus_signups_total",
		Help: "Signup attempts by result.",
	}, []string{"result"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edustatus_submissions_total",
		Help: "Certificate request submissions by type and result.",
	}, []string{"type", "result"})

	DerivedGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edustatus_derived_generated_total",
		Help: "Fee and attendance records generated on first access.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edustatus_notifications_total",
		Help: "Notifications emitted by the worker.",
	}, []string{"type"})

	StoreFlush = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edustatus_store_flush_seconds",
		Help:    "Time spent writing a collection to the storage medium.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

// Result turns an error into a low-cardinality label value: "ok" or its apperr kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Kind(err)
}
