package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_ingested_total",
			Help: "Order events processed, by result",
		},
		[]string{"result"}, // created, updated, frozen, rejected, failed
	)

	AffiliatesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliates_registered_total",
			Help: "Affiliates created, including auto-registration from orders",
		},
	)

	PayoutTasksEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_tasks_enqueued_total",
			Help: "Payout tasks pushed to the queue",
		},
	)

	PayoutsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_settled_total",
			Help: "Payout task outcomes",
		},
		[]string{"outcome"}, // paid, skipped, retry, flagged, error
	)

	PayoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payout_settlement_duration_seconds",
			Help:    "Duration of a single order settlement",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	NotificationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_errors_total",
			Help: "Affiliate notifications that could not be published or sent",
		},
	)
)
