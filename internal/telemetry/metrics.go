package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	PaymentsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_payments_initiated_total",
		Help: "Payments created in PENDING state.",
	})

	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_verifications_total",
		Help: "Verification results by outcome.",
	}, []string{"outcome"})

	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refunds_total",
		Help: "Refunds by resulting payment status.",
	}, []string{"status"})

	CouponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_coupon_redemptions_total",
		Help: "Coupon redemption attempts at settlement by result.",
	}, []string{"result"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_gateway_request_duration_seconds",
		Help:    "Payment gateway call latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "result"})
)
