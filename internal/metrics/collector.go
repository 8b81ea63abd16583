package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 网关指标
	gatewayRequestsTotal   *prometheus.CounterVec
	gatewayRequestDuration *prometheus.HistogramVec
	gatewayFallbacksTotal  *prometheus.CounterVec
	chunksEmittedTotal     *prometheus.CounterVec
	tokensUsedTotal        *prometheus.CounterVec

	// 熔断器指标
	breakerState            *prometheus.GaugeVec
	breakerTransitionsTotal *prometheus.CounterVec

	// 会话指标
	sessionsActive         prometheus.Gauge
	sessionRejectionsTotal *prometheus.CounterVec

	// 持久化指标
	persistenceFailuresTotal *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

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

	// 网关指标
	c.gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of gateway requests",
		},
		[]string{"backend", "outcome"}, // outcome: success, error, timeout
	)

	c.gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)

	c.gatewayFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_fallbacks_total",
			Help:      "Total number of fallbacks from primary to secondary backend",
		},
		[]string{"from", "to"},
	)

	c.chunksEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total number of response chunks emitted",
		},
		[]string{"backend", "kind"},
	)

	c.tokensUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of completion tokens reported by backends",
		},
		[]string{"backend", "model"},
	)

	// 熔断器指标
	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half_open)",
		},
		[]string{"backend"},
	)

	c.breakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open streaming sessions",
		},
	)

	c.sessionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Total number of rejected session requests",
		},
		[]string{"reason"}, // reason: busy, unauthorized, rate_limited, invalid
	)

	// 持久化指标
	c.persistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of failed turn persistence attempts",
		},
		[]string{"store"},
	)

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

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 网关指标记录
// =============================================================================

// RecordGatewayRequest 记录一次网关请求
func (c *Collector) RecordGatewayRequest(backend, outcome string, duration time.Duration) {
	c.gatewayRequestsTotal.WithLabelValues(backend, outcome).Inc()
	c.gatewayRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordFallback 记录一次后端回退
func (c *Collector) RecordFallback(from, to string) {
	c.gatewayFallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordChunk 记录一个响应分块
func (c *Collector) RecordChunk(backend, kind string) {
	c.chunksEmittedTotal.WithLabelValues(backend, kind).Inc()
}

// RecordTokens 记录后端上报的补全 token 数
func (c *Collector) RecordTokens(backend, model string, tokens int) {
	if tokens <= 0 {
		return
	}
	c.tokensUsedTotal.WithLabelValues(backend, model).Add(float64(tokens))
}

// =============================================================================
// ⚡ 熔断器指标记录
// =============================================================================

// SetBreakerState 更新后端熔断器状态
func (c *Collector) SetBreakerState(backend string, state float64) {
	c.breakerState.WithLabelValues(backend).Set(state)
}

// RecordBreakerTransition 记录一次熔断器状态转换
func (c *Collector) RecordBreakerTransition(backend, from, to string) {
	c.breakerTransitionsTotal.WithLabelValues(backend, from, to).Inc()
}

// =============================================================================
// 🔌 会话指标记录
// =============================================================================

// SessionOpened 会话建立
func (c *Collector) SessionOpened() {
	c.sessionsActive.Inc()
}

// SessionClosed 会话关闭
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// RecordSessionRejection 记录一次会话请求拒绝
func (c *Collector) RecordSessionRejection(reason string) {
	c.sessionRejectionsTotal.WithLabelValues(reason).Inc()
}

// =============================================================================
// 💾 持久化指标记录
// =============================================================================

// RecordPersistenceFailure 记录一次持久化失败
func (c *Collector) RecordPersistenceFailure(store string) {
	c.persistenceFailuresTotal.WithLabelValues(store).Inc()
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
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
		return "unknown"
	}
}
