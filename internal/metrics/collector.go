package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 中继指标收集器。所有记录方法对 nil 接收者安全，
// 未接入指标的调用方可以直接传 nil。
type Collector struct {
	// 连接指标
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter

	// 帧指标
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec

	// 上游指标
	upstreamActive    prometheus.Gauge
	upstreamTotal     *prometheus.CounterVec
	upstreamResponses *prometheus.CounterVec

	// 错误指标
	errorsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return newCollector(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到指定 Registry，测试用。
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	return newCollector(reg, namespace, logger)
}

func newCollector(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 连接指标
	c.connectionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of currently connected clients",
	})
	c.connectionsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Total number of accepted client connections",
	})

	// 帧指标
	c.framesReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of inbound frames by type",
		},
		[]string{"type"},
	)
	c.framesSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of outbound frames by type",
		},
		[]string{"type"},
	)

	// 上游指标
	c.upstreamActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_sessions_active",
		Help:      "Number of currently open upstream sessions",
	})
	c.upstreamTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_sessions_total",
			Help:      "Total number of upstream session attempts by outcome",
		},
		[]string{"outcome"},
	)
	c.upstreamResponses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_responses_total",
			Help:      "Total number of upstream responses relayed by kind",
		},
		[]string{"kind"},
	)

	// 错误指标
	c.errorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors reported to clients by code",
		},
		[]string{"code"},
	)

	return c
}

// ConnectionOpened 记录一条新接入的客户端连接。
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed 记录一条客户端连接关闭。
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// FrameReceived 记录一帧入站消息。
func (c *Collector) FrameReceived(frameType string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(frameType).Inc()
}

// FrameSent 记录一帧出站消息。
func (c *Collector) FrameSent(frameType string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(frameType).Inc()
}

// UpstreamStarted 记录一次成功建立的上游会话。
func (c *Collector) UpstreamStarted() {
	if c == nil {
		return
	}
	c.upstreamTotal.WithLabelValues("started").Inc()
	c.upstreamActive.Inc()
}

// UpstreamFailed 记录一次失败的上游会话建立。
func (c *Collector) UpstreamFailed() {
	if c == nil {
		return
	}
	c.upstreamTotal.WithLabelValues("failed").Inc()
}

// UpstreamClosed 记录一次上游会话关闭。
func (c *Collector) UpstreamClosed() {
	if c == nil {
		return
	}
	c.upstreamActive.Dec()
}

// UpstreamResponse 记录一条转发给客户端的上游响应。
func (c *Collector) UpstreamResponse(kind string) {
	if c == nil {
		return
	}
	c.upstreamResponses.WithLabelValues(kind).Inc()
}

// ErrorReported 记录一条上报给客户端的错误。
func (c *Collector) ErrorReported(code string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(code).Inc()
}
