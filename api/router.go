package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/api/handlers"
	"github.com/BaSui01/tripflow/auth"
	"github.com/BaSui01/tripflow/gateway/breaker"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/persistence"
	"github.com/BaSui01/tripflow/session"
)

// VersionInfo 构建信息
type VersionInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// Deps 路由依赖
type Deps struct {
	Verifier      *auth.Verifier
	Gateway       session.Gateway
	SessionConfig *session.Config
	Breakers      *breaker.Registry
	Backends      []string
	Store         persistence.TurnStore
	StoreName     string
	Metrics       *metrics.Collector
	MetricsRoute  bool
	Version       VersionInfo
	Logger        *zap.Logger
}

// NewRouter 组装网关的全部 HTTP 路由
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	health := handlers.NewHealthHandler(logger)
	if deps.Store != nil {
		name := deps.StoreName
		if name == "" {
			name = "turn_store"
		}
		health.RegisterCheck(handlers.NewPingHealthCheck(name, deps.Store.Ping))
	}

	backends := handlers.NewBackendsHandler(deps.Breakers, deps.Backends, logger)
	token := handlers.NewTokenHandler(deps.Verifier, logger)
	ws := handlers.NewWSHandler(deps.Verifier, deps.Gateway, deps.SessionConfig, deps.Store, deps.Metrics, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(
		deps.Version.Version, deps.Version.BuildTime, deps.Version.GitCommit))

	mux.HandleFunc("GET /v1/backends", instrument(deps.Metrics, "/v1/backends", backends.HandleStatus))
	mux.HandleFunc("POST /v1/backends/{backend}/reset", instrument(deps.Metrics, "/v1/backends/reset", backends.HandleReset))
	mux.HandleFunc("POST /v1/auth/token", instrument(deps.Metrics, "/v1/auth/token", token.HandleIssue))

	// websocket 路由不经过状态码包装器：升级需要劫持底层连接
	mux.Handle("GET /v1/chat", ws)

	if deps.MetricsRoute {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

// instrument 为普通 HTTP 路由记录请求指标
func instrument(collector *metrics.Collector, path string, next http.HandlerFunc) http.HandlerFunc {
	if collector == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := handlers.NewResponseWriter(w)
		next(rw, r)
		collector.RecordHTTPRequest(r.Method, path, rw.StatusCode, time.Since(start))
	}
}
