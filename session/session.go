package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/types"
)

// Gateway 是会话对请求编排器的唯一依赖
type Gateway interface {
	Handle(ctx context.Context, req *types.Request) <-chan types.Chunk
}

// Config 会话配置
type Config struct {
	// RateLimit 入站消息速率上限（条/秒），0 表示不限速
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// RateBurst 速率突发额度
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`

	// HistoryLimit 会话内保留的上下文轮次上限
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`

	// MaxConnections 并发会话数上限，0 表示不限制。
	// 由连接入口（ws handler）执行，超限连接在升级前被拒绝
	MaxConnections int `yaml:"max_connections" json:"max_connections"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RateLimit:      2,
		RateBurst:      5,
		HistoryLimit:   types.MaxContextTurns,
		MaxConnections: 1024,
	}
}

// Identity 已认证对端身份
type Identity struct {
	UserID         string
	ConversationID string
}

// Options 可选协作组件
type Options struct {
	// History 预加载的会话历史（例如从轮次存储读出）
	History []types.Turn

	// Metrics 指标收集器
	Metrics *metrics.Collector

	// Logger 日志
	Logger *zap.Logger
}

// Session 一条对端连接的服务循环。
// 请求严格串行：上一条响应未终结时，新请求被 SESSION_BUSY 拒绝。
type Session struct {
	config   *Config
	conn     Conn
	gateway  Gateway
	identity Identity
	limiter  *rate.Limiter
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu      sync.Mutex
	busy    bool
	history []types.Turn

	relayDone sync.WaitGroup
}

// New 创建会话
func New(config *Config, conn Conn, gateway Gateway, identity Identity, opts Options) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HistoryLimit <= 0 || config.HistoryLimit > types.MaxContextTurns {
		config.HistoryLimit = types.MaxContextTurns
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	history := opts.History
	if len(history) > config.HistoryLimit {
		history = history[len(history)-config.HistoryLimit:]
	}

	return &Session{
		config:   config,
		conn:     conn,
		gateway:  gateway,
		identity: identity,
		limiter:  limiter,
		metrics:  opts.Metrics,
		history:  history,
		logger: logger.With(
			zap.String("component", "session"),
			zap.String("user_id", identity.UserID),
			zap.String("conversation_id", identity.ConversationID),
		),
	}
}

// Streaming 报告本连接是否协商到流式帧格式
func (s *Session) Streaming() bool {
	return s.conn.Subprotocol() == StreamSubprotocol
}

// Run 执行会话读循环直到对端断开或 ctx 取消。
// 返回时进行中的转发已停止投递，但网关侧工作照常完成。
func (s *Session) Run(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.SessionOpened()
		defer s.metrics.SessionClosed()
	}
	s.logger.Info("session opened", zap.Bool("streaming", s.Streaming()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.relayDone.Wait()

	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			s.logger.Info("session closed", zap.Error(err))
			return err
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.writeError(ctx, types.NewError(types.ErrInvalidRequest, "malformed frame").WithCause(err))
			continue
		}

		switch frame.Type {
		case frameTypePing:
			_ = s.write(ctx, map[string]string{"type": frameTypePong})

		case frameTypeMessage, "":
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			s.dispatch(ctx, frame.Text)

		default:
			s.writeError(ctx, types.NewError(types.ErrInvalidRequest, "unknown frame type: "+frame.Type))
		}
	}
}

// dispatch 尝试把一条消息交给网关处理
func (s *Session) dispatch(ctx context.Context, text string) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordSessionRejection("busy")
		}
		s.logger.Debug("request rejected, response in progress")
		s.writeError(ctx, types.NewError(types.ErrSessionBusy, "a response is already streaming"))
		return
	}
	s.busy = true
	history := make([]types.Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	req := types.NewRequest(s.identity.UserID, s.identity.ConversationID, text, history)

	s.relayDone.Add(1)
	go func() {
		defer s.relayDone.Done()
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		s.relay(ctx, req)
	}()
}

// relay 把网关分块按协商的帧格式写回对端
func (s *Session) relay(ctx context.Context, req *types.Request) {
	ch := s.gateway.Handle(ctx, req)

	if s.Streaming() {
		s.relayStream(ctx, req, ch)
	} else {
		s.relayBuffered(ctx, req, ch)
	}
}

func (s *Session) relayStream(ctx context.Context, req *types.Request, ch <-chan types.Chunk) {
	var content strings.Builder
	failed := false
	writable := true

	for chunk := range ch {
		switch chunk.Kind {
		case types.ChunkToken:
			content.WriteString(chunk.Content)
		case types.ChunkError:
			failed = true
		}
		if writable {
			if err := s.write(ctx, newStreamFrame(chunk)); err != nil {
				// 对端已不可达，继续排空以便网关完成收尾
				writable = false
			}
		}
	}

	if !failed {
		s.appendHistory(req.Text, content.String())
	}
}

func (s *Session) relayBuffered(ctx context.Context, req *types.Request, ch <-chan types.Chunk) {
	buffer := NewBuffer()
	for chunk := range ch {
		buffer.Add(chunk)
	}

	_ = s.write(ctx, buffer.Frame())

	if !buffer.Failed() {
		s.appendHistory(req.Text, buffer.Content())
	}
}

// appendHistory 把完成的一问一答并入会话上下文
func (s *Session) appendHistory(userText, assistantText string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		types.Turn{Role: types.RoleUser, Content: userText, Timestamp: now},
		types.Turn{Role: types.RoleAssistant, Content: assistantText, Timestamp: now},
	)
	if len(s.history) > s.config.HistoryLimit {
		s.history = s.history[len(s.history)-s.config.HistoryLimit:]
	}
}

// writeError 按帧格式下发错误
func (s *Session) writeError(ctx context.Context, gwErr *types.Error) {
	if s.Streaming() {
		_ = s.write(ctx, errorStreamFrame(gwErr))
	} else {
		_ = s.write(ctx, errorResponseFrame(gwErr))
	}
}

// write 序列化并写出一帧
func (s *Session) write(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, data); err != nil {
		s.logger.Debug("frame write failed", zap.Error(err))
		return err
	}
	return nil
}
