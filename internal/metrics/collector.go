// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Side 标识指标来自通道的哪一端
const (
	SideHost     = "host"
	SideConsumer = "consumer"
	SideEvents   = "eventqueue"
)

// Direction 消息方向
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil Collector 的所有方法都是空操作
type Collector struct {
	// 流生命周期指标
	streamsOpened   *prometheus.CounterVec
	streamsFinished *prometheus.CounterVec
	activeStreams   *prometheus.GaugeVec

	// 消息指标
	messagesTotal      *prometheus.CounterVec
	protocolViolations *prometheus.CounterVec

	// 生产者指标
	pumpFetchDuration prometheus.Histogram

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，reg 为 nil 时注册到默认 Registerer
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 流生命周期指标
	c.streamsOpened = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Total number of streams registered",
		},
		[]string{"side"},
	)

	c.streamsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Total number of streams that reached a terminal state",
		},
		[]string{"side", "status"},
	)

	c.activeStreams = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of live streams",
		},
		[]string{"side"},
	)

	// 消息指标
	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of bridge messages",
		},
		[]string{"side", "direction", "type"},
	)

	c.protocolViolations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Messages dropped as protocol violations, late or unknown",
		},
		[]string{"side", "kind"},
	)

	// 生产者指标
	c.pumpFetchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pump_fetch_duration_seconds",
			Help:      "Time spent waiting on a producer pull",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordStreamOpened 记录流注册
func (c *Collector) RecordStreamOpened(side string) {
	if c == nil {
		return
	}
	c.streamsOpened.WithLabelValues(side).Inc()
	c.activeStreams.WithLabelValues(side).Inc()
}

// RecordStreamFinished 记录流终止，status 为 wire 状态码的文本
func (c *Collector) RecordStreamFinished(side, status string) {
	if c == nil {
		return
	}
	c.streamsFinished.WithLabelValues(side, status).Inc()
	c.activeStreams.WithLabelValues(side).Dec()
}

// RecordMessage 记录一条发送或接收的消息
func (c *Collector) RecordMessage(side, direction, msgType string) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(side, direction, msgType).Inc()
}

// RecordViolation 记录被丢弃的消息，kind 为错误码
func (c *Collector) RecordViolation(side, kind string) {
	if c == nil {
		return
	}
	c.protocolViolations.WithLabelValues(side, kind).Inc()
	c.logger.Debug("message dropped", zap.String("side", side), zap.String("kind", kind))
}

// RecordFetch 记录一次生产者拉取耗时
func (c *Collector) RecordFetch(duration time.Duration) {
	if c == nil {
		return
	}
	c.pumpFetchDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
