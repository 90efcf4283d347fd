package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 消息指标
	MessagesPosted   prometheus.Counter
	MessagesDeleted  prometheus.Counter
	LocalDeliveries  prometheus.Counter
	FailedDeliveries prometheus.Counter

	// 域间转发指标
	ForwardsAttempted *prometheus.CounterVec
	ForwardsFailed    *prometheus.CounterVec
	ForwardDuration   *prometheus.HistogramVec
	InboundForwards   *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MessagesPosted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fedmail_messages_posted_total",
				Help: "Total number of messages accepted from local users",
			},
		),

		MessagesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fedmail_messages_deleted_total",
				Help: "Total number of messages purged by their sender",
			},
		),

		LocalDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fedmail_local_deliveries_total",
				Help: "Total number of successful local inbox deliveries",
			},
		),

		FailedDeliveries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fedmail_failed_deliveries_total",
				Help: "Total number of failed local inbox deliveries",
			},
		),

		ForwardsAttempted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedmail_forwards_attempted_total",
				Help: "Total number of cross-domain forwarding attempts",
			},
			[]string{"peer_domain", "kind"},
		),

		ForwardsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedmail_forwards_failed_total",
				Help: "Total number of cross-domain forwarding attempts that reached no endpoint",
			},
			[]string{"peer_domain", "kind"},
		),

		ForwardDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedmail_forward_duration_seconds",
				Help:    "Cross-domain forwarding call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"peer_domain"},
		),

		InboundForwards: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedmail_inbound_forwards_total",
				Help: "Total number of forwarded messages and delete instructions accepted from peers",
			},
			[]string{"kind"},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
