package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/tripflow/types"
	"go.uber.org/zap"
)

// Completion 非流式后端的整段响应
type Completion struct {
	Text             string
	CompletionTokens int
}

// Completer 非流式能力：一次调用返回完整响应
type Completer interface {
	Complete(ctx context.Context, req *types.Request) (*Completion, error)
}

// HTTPCompleter 基于 HTTP JSON 的非流式上游客户端
type HTTPCompleter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPCompleter 创建非流式上游客户端
func NewHTTPCompleter(cfg Config, logger *zap.Logger) *HTTPCompleter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPCompleter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "http_completer"), zap.String("backend", cfg.ID)),
	}
}

// upstreamCompletion 上游非流式响应体
type upstreamCompletion struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete 实现 Completer.Complete
func (c *HTTPCompleter) Complete(ctx context.Context, req *types.Request) (*Completion, error) {
	body := upstreamRequest{
		Model:    c.cfg.Model,
		Messages: convertContext(req),
		Stream:   false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "marshal upstream request").
			WithCause(err).WithBackend(c.cfg.ID)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "build upstream request").
			WithCause(err).WithBackend(c.cfg.ID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "upstream call failed").
			WithCause(err).WithBackend(c.cfg.ID).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewError(types.ErrTransportFailure,
			fmt.Sprintf("upstream status %d: %s", resp.StatusCode, string(msg))).
			WithBackend(c.cfg.ID).WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var out upstreamCompletion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "decode upstream response").
			WithCause(err).WithBackend(c.cfg.ID).WithRetryable(true)
	}
	if out.Error != "" {
		return nil, types.NewError(types.ErrTransportFailure, "upstream error: "+out.Error).
			WithBackend(c.cfg.ID).WithRetryable(true)
	}

	return &Completion{
		Text:             out.Text,
		CompletionTokens: out.Usage.CompletionTokens,
	}, nil
}

// SingleHandler 将非流式后端合成为统一的 chunk 协议：
// start + 一个携带全文的合成 token + end。下游消费者因此无需关心
// 后端是否具备流式能力。
type SingleHandler struct {
	cfg       Config
	completer Completer
	outcomes  OutcomeRecorder
	logger    *zap.Logger
}

// NewSingleHandler 创建非流式后端适配器
func NewSingleHandler(cfg Config, completer Completer, outcomes OutcomeRecorder, logger *zap.Logger) *SingleHandler {
	if outcomes == nil {
		outcomes = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SingleHandler{
		cfg:       cfg,
		completer: completer,
		outcomes:  outcomes,
		logger:    logger.With(zap.String("component", "single_handler"), zap.String("backend", cfg.ID)),
	}
}

func (h *SingleHandler) ID() string      { return h.cfg.ID }
func (h *SingleHandler) Model() string   { return h.cfg.Model }
func (h *SingleHandler) Streaming() bool { return false }

// Invoke 实现 Handler.Invoke
func (h *SingleHandler) Invoke(ctx context.Context, req *types.Request) (<-chan types.Chunk, error) {
	completion, err := h.completer.Complete(ctx, req)
	if err != nil {
		h.outcomes.RecordOutcome(h.cfg.ID, false)
		return nil, err
	}

	ch := make(chan types.Chunk, 3)
	defer close(ch)

	meta := startMeta(h.cfg.ID, h.cfg.Model)
	ch <- types.NewStartChunk(meta)
	// 空响应合法：不发合成 token，直接 end，仍会被持久化为空轮次
	if completion.Text != "" {
		ch <- types.NewTokenChunk(completion.Text)
	}
	endMeta := meta.Clone()
	if completion.CompletionTokens > 0 {
		endMeta[types.MetaTokens] = completion.CompletionTokens
	}
	ch <- types.NewEndChunk(endMeta)

	h.outcomes.RecordOutcome(h.cfg.ID, true)
	return ch, nil
}
