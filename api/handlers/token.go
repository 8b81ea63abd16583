package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/auth"
	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// 🔑 令牌签发 Handler
// =============================================================================

// TokenHandler 签发连接令牌。
// 生产部署在可信边界后面挂这个端点（或由上游签发同密钥的令牌）。
type TokenHandler struct {
	verifier *auth.Verifier
	logger   *zap.Logger
}

// NewTokenHandler 创建令牌签发处理器
func NewTokenHandler(verifier *auth.Verifier, logger *zap.Logger) *TokenHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenHandler{
		verifier: verifier,
		logger:   logger.With(zap.String("component", "token_handler")),
	}
}

// tokenRequest 签发请求体
type tokenRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// HandleIssue 处理 POST /v1/auth/token
func (h *TokenHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.UserID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "user_id is required"), h.logger)
		return
	}

	token, err := h.verifier.Issue(req.UserID, req.ConversationID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "token signing failed").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"token": token})
}
