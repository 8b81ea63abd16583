package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/gateway/backend"
	"github.com/BaSui01/tripflow/gateway/breaker"
	"github.com/BaSui01/tripflow/gateway/classifier"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/internal/tokens"
	"github.com/BaSui01/tripflow/persistence"
	"github.com/BaSui01/tripflow/types"
)

// Config 网关配置
type Config struct {
	// RequestTimeout 单个请求的总时间预算（含排队与流式输出）
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// PersistTimeout 异步持久化单个轮次的时间预算
	PersistTimeout time.Duration `yaml:"persist_timeout" json:"persist_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 120 * time.Second,
		PersistTimeout: 10 * time.Second,
	}
}

// Options 可选协作组件，均可为空
type Options struct {
	// Store 轮次存储（空则不持久化）
	Store persistence.TurnStore

	// StoreName 存储标识（仅用于指标与日志）
	StoreName string

	// Metrics 指标收集器
	Metrics *metrics.Collector

	// Logger 日志
	Logger *zap.Logger
}

// Gateway 请求编排器。
// 对同一连接的请求逐个处理（排队由会话层保证），多个连接可并发调用。
type Gateway struct {
	config     *Config
	classifier *classifier.Classifier
	breakers   *breaker.Registry
	handlers   map[string]backend.Handler
	store      persistence.TurnStore
	storeName  string
	metrics    *metrics.Collector
	estimator  *tokens.Estimator
	logger     *zap.Logger
}

// New 创建网关。handlers 必须覆盖分类器配置的两个后端。
func New(config *Config, cls *classifier.Classifier, breakers *breaker.Registry, handlers []backend.Handler, opts Options) (*Gateway, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 120 * time.Second
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 10 * time.Second
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if breakers == nil {
		return nil, fmt.Errorf("breaker registry is required")
	}

	byID := make(map[string]backend.Handler, len(handlers))
	for _, h := range handlers {
		byID[h.ID()] = h
	}
	for _, id := range []string{cls.FastBackend(), cls.QualityBackend()} {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("no handler registered for backend %q", id)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	storeName := opts.StoreName
	if storeName == "" && opts.Store != nil {
		storeName = "default"
	}

	return &Gateway{
		config:     config,
		classifier: cls,
		breakers:   breakers,
		handlers:   byID,
		store:      opts.Store,
		storeName:  storeName,
		metrics:    opts.Metrics,
		estimator:  tokens.NewEstimator(),
		logger:     logger.With(zap.String("component", "gateway")),
	}, nil
}

// Handle 处理单个请求，返回有限的分块通道。
// 通道以恰好一个终结分块（end 或 error）结束后关闭。
// ctx 取消只停止分块投递；后端调用与持久化在脱离的上下文中完成，
// 保证被放弃请求的最终结果仍进入熔断统计。
func (g *Gateway) Handle(ctx context.Context, req *types.Request) <-chan types.Chunk {
	out := make(chan types.Chunk, 16)

	decision, err := g.classifier.Classify(req)
	if err != nil {
		g.failFast(out, err)
		return out
	}

	go g.run(ctx, req, decision, out)
	return out
}

// failFast 在触碰任何后端之前用单个 error 分块短路
func (g *Gateway) failFast(out chan<- types.Chunk, err error) {
	gwErr, ok := err.(*types.Error)
	if !ok {
		gwErr = types.NewError(types.ErrInternalError, "unexpected failure").WithCause(err)
	}
	out <- types.NewErrorChunk(gwErr)
	close(out)
}

func (g *Gateway) run(ctx context.Context, req *types.Request, decision *types.RoutingDecision, out chan<- types.Chunk) {
	defer close(out)

	start := time.Now()

	// 后端调用使用脱离连接的上下文：断开连接不应把正常的后端
	// 响应算成失败
	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	handler, src, gwErr := g.invoke(hctx, req, decision)
	if gwErr != nil {
		g.logger.Warn("no backend available",
			zap.String("request_id", req.ID),
			zap.String("primary", decision.Backend),
			zap.Error(gwErr),
		)
		g.record(decision.Backend, "unavailable", time.Since(start))
		g.emit(ctx, out, types.NewErrorChunk(gwErr), true)
		return
	}

	backendID := handler.ID()
	g.logger.Debug("request dispatched",
		zap.String("request_id", req.ID),
		zap.String("backend", backendID),
		zap.String("reason", decision.Reason),
		zap.Bool("streaming", handler.Streaming()),
	)

	// 转发循环：按到达顺序原样转发，同时装配完整回复内容。
	// 超出总时间预算时合成 TIMEOUT 分块并取消后端调用。
	var (
		content    strings.Builder
		endMeta    types.Metadata
		outcome    = "success"
		delivering = true
	)
	timer := time.NewTimer(g.config.RequestTimeout)
	defer timer.Stop()

relay:
	for {
		select {
		case chunk, ok := <-src:
			if !ok {
				break relay
			}
			switch chunk.Kind {
			case types.ChunkToken:
				content.WriteString(chunk.Content)
			case types.ChunkEnd:
				endMeta = chunk.Metadata
			case types.ChunkError:
				outcome = "error"
			}
			if g.metrics != nil {
				g.metrics.RecordChunk(backendID, string(chunk.Kind))
			}
			if delivering {
				delivering = g.emit(ctx, out, chunk, delivering)
			}

		case <-timer.C:
			outcome = "timeout"
			cancel()
			timeoutErr := types.NewError(types.ErrTimeout,
				fmt.Sprintf("request exceeded %s budget", g.config.RequestTimeout)).
				WithBackend(backendID).
				WithRetryable(true)
			g.logger.Warn("request timed out",
				zap.String("request_id", req.ID),
				zap.String("backend", backendID),
				zap.Duration("budget", g.config.RequestTimeout),
			)
			g.emit(ctx, out, types.NewErrorChunk(timeoutErr), delivering)
			// 后台排空，让 Handler 记录自己的最终结果
			go func() {
				for range src {
				}
			}()
			break relay
		}
	}

	duration := time.Since(start)
	g.record(backendID, outcome, duration)

	if outcome != "success" {
		return
	}

	completionTokens := tokenCount(endMeta)
	if completionTokens == 0 && content.Len() > 0 {
		completionTokens = g.estimator.Count(content.String())
	}
	if g.metrics != nil {
		g.metrics.RecordTokens(backendID, handler.Model(), completionTokens)
	}

	g.persist(req, decision, handler, content.String(), completionTokens, duration)
}

// invoke 选择后端并启动调用，必要时回退一次。
// 返回的错误意味着请求在任何流开始之前就已失败。
func (g *Gateway) invoke(ctx context.Context, req *types.Request, decision *types.RoutingDecision) (backend.Handler, <-chan types.Chunk, *types.Error) {
	primary := decision.Backend
	secondary := g.fallbackFor(primary)

	if g.breakers.Allow(primary) {
		h := g.handlers[primary]
		src, err := h.Invoke(ctx, req)
		if err == nil {
			return h, src, nil
		}
		g.logger.Warn("primary backend refused request",
			zap.String("request_id", req.ID),
			zap.String("backend", primary),
			zap.Error(err),
		)
	}

	if secondary != "" && g.breakers.Allow(secondary) {
		if g.metrics != nil {
			g.metrics.RecordFallback(primary, secondary)
		}
		g.logger.Info("falling back to secondary backend",
			zap.String("request_id", req.ID),
			zap.String("from", primary),
			zap.String("to", secondary),
		)
		h := g.handlers[secondary]
		src, err := h.Invoke(ctx, req)
		if err == nil {
			return h, src, nil
		}
		g.logger.Warn("fallback backend refused request",
			zap.String("request_id", req.ID),
			zap.String("backend", secondary),
			zap.Error(err),
		)
	}

	return nil, nil, types.NewError(types.ErrBackendUnavailable, "all backends unavailable").
		WithBackend(primary).
		WithRetryable(true)
}

// fallbackFor 返回与 primary 配对的另一个后端
func (g *Gateway) fallbackFor(primary string) string {
	var other string
	if primary == g.classifier.FastBackend() {
		other = g.classifier.QualityBackend()
	} else {
		other = g.classifier.FastBackend()
	}
	if _, ok := g.handlers[other]; !ok {
		return ""
	}
	return other
}

// emit 在连接仍然存活时投递分块，返回是否继续投递
func (g *Gateway) emit(ctx context.Context, out chan<- types.Chunk, chunk types.Chunk, delivering bool) bool {
	if !delivering {
		return false
	}
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *Gateway) record(backendID, outcome string, duration time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordGatewayRequest(backendID, outcome, duration)
	}
}

// persist 异步写入用户轮次与装配好的助手轮次。
// 失败只记日志与指标，绝不影响已经交付的响应。
func (g *Gateway) persist(req *types.Request, decision *types.RoutingDecision, handler backend.Handler, content string, completionTokens int, duration time.Duration) {
	if g.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.config.PersistTimeout)
		defer cancel()

		turns := []*persistence.Turn{
			{
				ConversationID: req.ConversationID,
				Role:           string(types.RoleUser),
				Content:        req.Text,
				CreatedAt:      req.ArrivalTime,
			},
			{
				ConversationID: req.ConversationID,
				Role:           string(types.RoleAssistant),
				Content:        content,
				Metadata: map[string]any{
					"backend":     handler.ID(),
					"model":       handler.Model(),
					"tokens":      completionTokens,
					"duration_ms": duration.Milliseconds(),
					"reason":      decision.Reason,
				},
			},
		}

		// 顺序写入，保证用户轮次先于助手轮次落盘
		for _, turn := range turns {
			if err := g.store.SaveTurn(ctx, turn); err != nil {
				g.logger.Error("turn persistence failed",
					zap.String("request_id", req.ID),
					zap.String("conversation_id", req.ConversationID),
					zap.String("role", turn.Role),
					zap.Error(err),
				)
				if g.metrics != nil {
					g.metrics.RecordPersistenceFailure(g.storeName)
				}
			}
		}
	}()
}

// tokenCount 从 end 分块元数据提取 token 数
func tokenCount(meta types.Metadata) int {
	if meta == nil {
		return 0
	}
	switch v := meta[types.MetaTokens].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
