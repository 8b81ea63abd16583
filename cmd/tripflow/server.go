package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/tripflow/api"
	"github.com/BaSui01/tripflow/auth"
	"github.com/BaSui01/tripflow/config"
	"github.com/BaSui01/tripflow/gateway"
	"github.com/BaSui01/tripflow/gateway/backend"
	"github.com/BaSui01/tripflow/gateway/breaker"
	"github.com/BaSui01/tripflow/gateway/classifier"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/internal/server"
	"github.com/BaSui01/tripflow/persistence"
	"github.com/BaSui01/tripflow/session"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TripFlow 网关的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager *server.Manager

	collector *metrics.Collector
	store     persistence.TurnStore
	breakers  *breaker.Registry
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 组装全部组件并启动 HTTP 服务器
func (s *Server) Start() error {
	// 1. 指标收集器
	if s.cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector(s.cfg.Metrics.Namespace, s.logger)
	}

	// 2. 轮次存储
	store, err := persistence.NewTurnStore(persistence.Config{
		Type: persistence.StoreType(s.cfg.Persistence.Type),
		Redis: persistence.RedisConfig{
			Addr:      s.cfg.Persistence.Redis.Addr,
			Password:  s.cfg.Persistence.Redis.Password,
			DB:        s.cfg.Persistence.Redis.DB,
			PoolSize:  s.cfg.Persistence.Redis.PoolSize,
			KeyPrefix: s.cfg.Persistence.Redis.KeyPrefix,
		},
		SQLitePath:  s.cfg.Persistence.SQLitePath,
		PostgresDSN: s.cfg.Persistence.PostgresDSN,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create turn store: %w", err)
	}
	s.store = store

	// 3. 熔断器（状态变更回写指标）
	s.breakers = breaker.NewRegistry(&breaker.Config{
		Threshold:         s.cfg.Breaker.Threshold,
		Cooldown:          s.cfg.Breaker.Cooldown,
		MaxCooldown:       s.cfg.Breaker.MaxCooldown,
		BackoffMultiplier: s.cfg.Breaker.BackoffMultiplier,
		OnStateChange: func(backendID string, from, to breaker.State) {
			s.logger.Warn("breaker state changed",
				zap.String("backend", backendID),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if s.collector != nil {
				s.collector.RecordBreakerTransition(backendID, from.String(), to.String())
				s.collector.SetBreakerState(backendID, float64(to))
			}
		},
	}, s.logger)

	// 4. 路由分类器与后端
	cls := classifier.New(&classifier.Config{
		FastBackend:      s.cfg.Routing.FastBackend,
		QualityBackend:   s.cfg.Routing.QualityBackend,
		LongFormRunes:    s.cfg.Routing.LongFormRunes,
		PlanningKeywords: s.cfg.Routing.PlanningKeywords,
	}, s.logger)

	handlers := []backend.Handler{
		s.newBackendHandler(s.cfg.Routing.FastBackend, s.cfg.Swift, true),
		s.newBackendHandler(s.cfg.Routing.QualityBackend, s.cfg.Atlas, false),
	}

	// 5. 请求编排网关
	gw, err := gateway.New(&gateway.Config{
		RequestTimeout: s.cfg.Gateway.RequestTimeout,
		PersistTimeout: s.cfg.Gateway.PersistTimeout,
	}, cls, s.breakers, handlers, gateway.Options{
		Store:     s.store,
		StoreName: s.cfg.Persistence.Type,
		Metrics:   s.collector,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	// 6. 认证
	verifier, err := auth.NewVerifier(&auth.Config{
		Secret:   s.cfg.Auth.Secret,
		Issuer:   s.cfg.Auth.Issuer,
		TokenTTL: s.cfg.Auth.TokenTTL,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	// 7. 路由与 HTTP 服务器
	router := api.NewRouter(api.Deps{
		Verifier: verifier,
		Gateway:  gw,
		SessionConfig: &session.Config{
			RateLimit:      s.cfg.Session.RateLimit,
			RateBurst:      s.cfg.Session.RateBurst,
			HistoryLimit:   s.cfg.Session.HistoryLimit,
			MaxConnections: s.cfg.Session.MaxConnections,
		},
		Breakers:     s.breakers,
		Backends:     []string{s.cfg.Routing.FastBackend, s.cfg.Routing.QualityBackend},
		Store:        s.store,
		StoreName:    s.cfg.Persistence.Type,
		Metrics:      s.collector,
		MetricsRoute: s.cfg.Metrics.Enabled,
		Version: api.VersionInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
		},
		Logger: s.logger,
	})

	s.httpManager = server.NewManager(router, server.Config{
		Addr:            s.cfg.Server.Addr,
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  s.cfg.Server.MaxHeaderBytes,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("All components started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("fast_backend", s.cfg.Routing.FastBackend),
		zap.String("quality_backend", s.cfg.Routing.QualityBackend),
		zap.String("persistence", s.cfg.Persistence.Type),
		zap.Bool("metrics_enabled", s.cfg.Metrics.Enabled),
	)

	return nil
}

// newBackendHandler 按配置构造单个后端的调用器。
// 流式后端走 SSE 端点，非流式后端包装为单响应调用。
func (s *Server) newBackendHandler(id string, cfg config.BackendConfig, streaming bool) backend.Handler {
	bcfg := backend.Config{
		ID:        id,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		Streaming: streaming,
	}

	if streaming {
		return backend.NewStreamingHandler(bcfg, s.breakers, s.logger)
	}
	return backend.NewSingleHandler(bcfg, backend.NewHTTPCompleter(bcfg, s.logger), s.breakers, s.logger)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞直到收到退出信号或服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-s.httpManager.Errors():
		if err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	s.Shutdown()
}

// Shutdown 并行关闭 HTTP 服务器与轮次存储
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if s.httpManager != nil {
		g.Go(func() error {
			return s.httpManager.Shutdown(gctx)
		})
	}
	if s.store != nil {
		g.Go(func() error {
			return s.store.Close()
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
