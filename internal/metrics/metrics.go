package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legallyup_payments_total",
			Help: "Payments recorded, by plan",
		},
		[]string{"plan"},
	)

	PlanChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legallyup_plan_changes_total",
			Help: "Plan transitions written to the audit ledger, by reason",
		},
		[]string{"reason"},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legallyup_generations_total",
			Help: "Document generation attempts, by result and plan",
		},
		[]string{"result", "plan"},
	)

	NotificationsPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legallyup_notifications_publish_failures_total",
			Help: "Notification events that could not be published",
		},
		[]string{"type"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legallyup_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
