package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Total payment gateway requests by method and result",
		},
		[]string{"method", "result"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_ms",
			Help:    "Payment gateway request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"method", "result"},
	)
)

// RecordGatewayCall 记录一次支付网关调用
func RecordGatewayCall(method, result string, started time.Time) {
	if result != "success" {
		result = "fail"
	}
	gatewayTotal.WithLabelValues(method, result).Inc()
	gatewayDuration.WithLabelValues(method, result).Observe(float64(time.Since(started).Milliseconds()))
}
