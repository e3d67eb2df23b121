package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_requests_total",
			Help: "Total settlement attempts by result and outcome",
		},
		[]string{"result", "outcome"},
	)

	settleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settle_request_duration_ms",
			Help:    "Settlement processing duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "outcome"},
	)
)

// RecordSettle 记录结算业务指标
// result: "success" | "success_idempotent" | "fail"
// outcome: "player1" | "player2" | "tie" | "unknown"
func RecordSettle(result, outcome string, started time.Time) {
	res := result
	if res != "success" && res != "success_idempotent" {
		res = "fail"
	}
	oc := strings.ToLower(strings.TrimSpace(outcome))
	if oc == "" {
		oc = "unknown"
	}
	settleTotal.WithLabelValues(res, oc).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	settleDuration.WithLabelValues(res, oc).Observe(durMs)
}
