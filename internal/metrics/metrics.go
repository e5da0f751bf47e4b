// Package metrics holds the Prometheus collectors of the token service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensDebited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "tokens_debited_total",
		Help:      "Tokens spent on features.",
	}, []string{"feature"})

	TokensCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "tokens_credited_total",
		Help:      "Tokens added to accounts.",
	}, []string{"source"})

	DebitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "debit_rejections_total",
		Help:      "Debits refused, by reason.",
	}, []string{"reason"})

	CostFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "feature_cost_fallbacks_total",
		Help:      "Cost lookups answered from the built-in price list.",
	}, []string{"feature"})

	BalanceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "balance_fallbacks_total",
		Help:      "Balance reads that returned the display default after an error.",
	})

	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "payments_total",
		Help:      "Payment reconciliation outcomes.",
	}, []string{"outcome"})

	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "generations_total",
		Help:      "Feature generation attempts, by feature and outcome.",
	}, []string{"feature", "outcome"})

	OutboxRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aspire",
		Name:      "outbox_events_total",
		Help:      "Outbox events handed to the broker, by result.",
	}, []string{"result"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aspire",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
