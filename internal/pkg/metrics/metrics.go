// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心链路的业务指标。命名遵循 prometheus 惯例：<域>_<对象>_<动作>_total。
var (
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Number of orders created, partitioned by result.",
	}, []string{"result"})

	PaymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payments_confirmed_total",
		Help: "Number of payments reconciled into paid orders.",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_webhook_events_total",
		Help: "Webhook deliveries partitioned by outcome (accepted, rejected_signature, ignored_event).",
	}, []string{"outcome"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_gateway_request_duration_seconds",
		Help:    "Latency of outbound payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_notification_failures_total",
		Help: "Notification dispatches that failed and were swallowed.",
	})
)
