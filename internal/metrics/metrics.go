// Package metrics holds Prometheus instruments that are used across the
// toolkit.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	UniqueChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_unique_checks_total",
			Help: "Uniqueness checks committed, by outcome (available, taken, error, local).",
		}, []string{"outcome"})

	UniqueStaleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_unique_stale_total",
			Help: "Uniqueness results discarded because a newer check superseded them.",
		})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_submissions_total",
			Help: "Form submissions by entity and outcome.",
		}, []string{"entity", "outcome"})

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_api_requests_total",
			Help: "Backend API requests by entity, operation, and HTTP status.",
		}, []string{"entity", "op", "status"})

	BackendWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_backend_writes_total",
			Help: "Writes handled by the reference backend, by entity and outcome.",
		}, []string{"entity", "outcome"})
)

func init() {
	prometheus.MustRegister(
		UniqueChecksTotal,
		UniqueStaleTotal,
		SubmissionsTotal,
		APIRequestsTotal,
		BackendWritesTotal,
	)
}
