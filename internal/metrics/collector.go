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

// Image sources.
const (
	SourceStream = "stream"
	SourceURL    = "url"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 图片指标
	imagesReceived *prometheus.CounterVec
	imageBytes     *prometheus.HistogramVec
	streamErrors   *prometheus.CounterVec

	// 抓取指标
	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	// 会话指标
	contextUpdates *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	replyDuration  *prometheus.HistogramVec
	tasksInFlight  prometheus.Gauge
	activeRooms    prometheus.Gauge
	participants   prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 图片指标
	c.imagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_received_total",
			Help:      "Total number of images added to a conversation",
		},
		[]string{"source"},
	)

	c.imageBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_size_bytes",
			Help:      "Size of ingested images in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"source"},
	)

	c.streamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Total number of failed inbound byte streams",
		},
		[]string{"reason"},
	)

	// 抓取指标
	c.fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_fetches_total",
			Help:      "Total number of URL image fetches",
		},
		[]string{"status"},
	)

	c.fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_fetch_duration_seconds",
			Help:      "URL image fetch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
	)

	// 会话指标
	c.contextUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_updates_total",
			Help:      "Total number of conversation context updates",
		},
		[]string{"result"},
	)

	c.repliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Total number of generated replies",
		},
		[]string{"kind", "status"},
	)

	c.replyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_duration_seconds",
			Help:      "Reply generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	c.tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of running ingestion and fetch tasks",
		},
	)

	c.activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms with a running session",
		},
	)

	c.participants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_connected",
			Help:      "Number of connected participants",
		},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordImage 记录一张进入对话的图片
func (c *Collector) RecordImage(source string, size int) {
	if c == nil {
		return
	}
	c.imagesReceived.WithLabelValues(source).Inc()
	c.imageBytes.WithLabelValues(source).Observe(float64(size))
}

// RecordStreamError 记录失败的入站字节流
func (c *Collector) RecordStreamError(reason string) {
	if c == nil {
		return
	}
	c.streamErrors.WithLabelValues(reason).Inc()
}

// RecordFetch 记录一次 URL 抓取
func (c *Collector) RecordFetch(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.fetchTotal.WithLabelValues(status).Inc()
	c.fetchDuration.Observe(duration.Seconds())
}

// RecordContextUpdate 记录上下文更新结果
func (c *Collector) RecordContextUpdate(success bool) {
	if c == nil {
		return
	}
	c.contextUpdates.WithLabelValues(result(success)).Inc()
}

// RecordReply 记录一次回复生成
func (c *Collector) RecordReply(kind string, success bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.repliesTotal.WithLabelValues(kind, result(success)).Inc()
	c.replyDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddTasksInFlight 调整运行中的任务数
func (c *Collector) AddTasksInFlight(delta int) {
	if c == nil {
		return
	}
	c.tasksInFlight.Add(float64(delta))
}

// RoomOpened 记录房间开启
func (c *Collector) RoomOpened() {
	if c == nil {
		return
	}
	c.activeRooms.Inc()
}

// RoomClosed 记录房间关闭
func (c *Collector) RoomClosed() {
	if c == nil {
		return
	}
	c.activeRooms.Dec()
}

// ParticipantJoined 记录参与者加入
func (c *Collector) ParticipantJoined() {
	if c == nil {
		return
	}
	c.participants.Inc()
}

// ParticipantLeft 记录参与者离开
func (c *Collector) ParticipantLeft() {
	if c == nil {
		return
	}
	c.participants.Dec()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// FetchStatus 把 HTTP 状态码归类为标签值
func FetchStatus(code int) string {
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
		return "error"
	}
}
