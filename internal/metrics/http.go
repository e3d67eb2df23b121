package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"path", "method"},
	)
)

// HTTPMetricsFilter 记录 HTTP 请求指标
func HTTPMetricsFilter(ctx *context.Context) {
	start := time.Now()
	// 让后续处理继续
	ctx.Input.SetData("_metrics_start", start)
}

// HTTPMetricsAfter 用于在响应完成后记录耗时与状态码
func HTTPMetricsAfter(ctx *context.Context) {
	v := ctx.Input.GetData("_metrics_start")
	start, _ := v.(time.Time)
	if !start.IsZero() {
		dur := time.Since(start).Milliseconds()
		path := pathLabel(ctx.Input.URL())
		method := ctx.Input.Method()
		status := ctx.ResponseWriter.Status
		httpReqDuration.WithLabelValues(path, method).Observe(float64(dur))
		httpReqTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	}
}

// pathLabel 把带参数的路径折叠为路由模板，房间ID/房间码不进标签，防止基数膨胀
func pathLabel(p string) string {
	switch {
	case strings.HasPrefix(p, "/api/room/code/"):
		return "/api/room/code/:code"
	case strings.HasPrefix(p, "/api/admin/user/"):
		if strings.HasSuffix(p, "/unban") {
			return "/api/admin/user/:id/unban"
		}
		return "/api/admin/user/:id/ban"
	case strings.HasPrefix(p, "/api/admin/room/"):
		return "/api/admin/room/:id/close"
	case p == "/api/room/create" || p == "/api/room/join":
		return p
	case strings.HasPrefix(p, "/api/room/"):
		if strings.HasSuffix(p, "/result") {
			return "/api/room/:id/result"
		}
		return "/api/room/:id"
	}
	return p
}
