package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_pollers_active",
			Help: "Number of payment pollers currently running",
		},
	)

	pollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_poll_ticks_total",
			Help: "Total payment poll ticks across all rooms",
		},
	)

	pollOutcome = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_poll_outcomes_total",
			Help: "Terminal poller outcomes by kind",
		},
		[]string{"outcome"}, // settled | timeout | aborted
	)
)

// PollerStarted 轮询器启动
func PollerStarted() { pollActive.Inc() }

// PollerStopped 轮询器退出
func PollerStopped() { pollActive.Dec() }

// RecordPollTick 一次轮询
func RecordPollTick() { pollTicks.Inc() }

// RecordPollOutcome 轮询器终态
func RecordPollOutcome(outcome string) { pollOutcome.WithLabelValues(outcome).Inc() }
