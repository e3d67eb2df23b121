package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_requests_total",
			Help: "Total room requests by op and result",
		},
		[]string{"op", "result"},
	)

	roomDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "room_request_duration_ms",
			Help:    "Room request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"op", "result"},
	)
)

// RecordRoom records business metrics for a room manager call.
// op is "create" or "join"; result should be "success" or "fail".
func RecordRoom(op, result string, started time.Time) {
	res := result
	if res != "success" {
		res = "fail"
	}
	roomTotal.WithLabelValues(op, res).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	roomDuration.WithLabelValues(op, res).Observe(durMs)
}
