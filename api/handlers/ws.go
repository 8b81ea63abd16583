package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/auth"
	"github.com/BaSui01/tripflow/internal/metrics"
	"github.com/BaSui01/tripflow/persistence"
	"github.com/BaSui01/tripflow/session"
	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🔌 Websocket 会话 Handler
// =============================================================================

// WSHandler 把 HTTP 升级请求接入会话服务循环。
// 认证失败在升级之前以普通 HTTP 错误拒绝；升级成功后
// 所有通信遵循 session 包定义的帧协议。
type WSHandler struct {
	verifier *auth.Verifier
	gateway  session.Gateway
	config   *session.Config
	store    persistence.TurnStore
	metrics  *metrics.Collector
	logger   *zap.Logger

	active atomic.Int64
}

// NewWSHandler 创建 websocket 处理器。store 可为空（不预加载历史）。
func NewWSHandler(verifier *auth.Verifier, gateway session.Gateway, config *session.Config, store persistence.TurnStore, collector *metrics.Collector, logger *zap.Logger) *WSHandler {
	if config == nil {
		config = session.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		verifier: verifier,
		gateway:  gateway,
		config:   config,
		store:    store,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "ws_handler")),
	}
}

// ServeHTTP 处理 GET /v1/chat
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.FromRequest(r)
	if err != nil {
		gwErr, ok := err.(*types.Error)
		if !ok {
			gwErr = types.NewError(types.ErrUnauthorized, "authentication failed").WithCause(err)
		}
		WriteError(w, gwErr, h.logger)
		return
	}

	// 连接数上限在升级之前检查，超限对端收到普通 HTTP 503
	if h.config.MaxConnections > 0 && h.active.Add(1) > int64(h.config.MaxConnections) {
		h.active.Add(-1)
		if h.metrics != nil {
			h.metrics.RecordSessionRejection("capacity")
		}
		h.logger.Warn("connection limit reached",
			zap.String("user_id", claims.Subject),
			zap.Int("max_connections", h.config.MaxConnections),
		)
		WriteError(w, types.NewError(types.ErrBackendUnavailable, "server at capacity").WithRetryable(true), h.logger)
		return
	}
	if h.config.MaxConnections > 0 {
		defer h.active.Add(-1)
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{session.StreamSubprotocol},
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("user_id", claims.Subject),
			zap.Error(err),
		)
		return
	}

	identity := session.Identity{
		UserID:         claims.Subject,
		ConversationID: claims.ConversationID,
	}

	s := session.New(h.config, session.NewWebsocketConn(wsConn), h.gateway, identity, session.Options{
		History: h.loadHistory(r.Context(), identity.ConversationID),
		Metrics: h.metrics,
		Logger:  h.logger,
	})

	_ = s.Run(r.Context())
	_ = wsConn.Close(websocket.StatusNormalClosure, "session ended")
}

// loadHistory 从轮次存储预加载会话上下文。
// 失败只降级为空上下文，不阻止连接建立。
func (h *WSHandler) loadHistory(ctx context.Context, conversationID string) []types.Turn {
	if h.store == nil || conversationID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	stored, err := h.store.GetTurns(ctx, conversationID, h.config.HistoryLimit)
	if err != nil {
		h.logger.Warn("history preload failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}

	history := make([]types.Turn, 0, len(stored))
	for _, turn := range stored {
		history = append(history, types.Turn{
			Role:      types.Role(turn.Role),
			Content:   turn.Content,
			Timestamp: turn.CreatedAt,
		})
	}
	return history
}
