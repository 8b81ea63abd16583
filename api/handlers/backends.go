package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/tripflow/gateway/breaker"
	"github.com/BaSui01/tripflow/types"
)

// =============================================================================
// ⚡ 后端状态 Handler
// =============================================================================

// BackendsHandler 暴露熔断器状态与运维重置入口
type BackendsHandler struct {
	breakers *breaker.Registry
	known    map[string]bool
	logger   *zap.Logger
}

// NewBackendsHandler 创建后端状态处理器。
// knownBackends 限定可重置的后端集合，防止拼错的运维请求污染注册表。
func NewBackendsHandler(breakers *breaker.Registry, knownBackends []string, logger *zap.Logger) *BackendsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(knownBackends))
	for _, b := range knownBackends {
		known[b] = true
	}
	return &BackendsHandler{
		breakers: breakers,
		known:    known,
		logger:   logger.With(zap.String("component", "backends_handler")),
	}
}

// HandleStatus 处理 GET /v1/backends
func (h *BackendsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]any{
		"backends": h.breakers.Snapshot(),
	})
}

// HandleReset 处理 POST /v1/backends/{backend}/reset
func (h *BackendsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	backend := r.PathValue("backend")
	if !h.known[backend] {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "unknown backend: "+backend), h.logger)
		return
	}

	h.breakers.Reset(backend)
	h.logger.Info("breaker reset via API", zap.String("backend", backend))
	WriteSuccess(w, map[string]string{"backend": backend, "state": breaker.StateClosed.String()})
}
