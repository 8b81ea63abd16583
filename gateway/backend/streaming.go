package backend

import (
	"bufio"
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

// upstreamRequest 上游流式/非流式补全请求体
type upstreamRequest struct {
	Model    string            `json:"model"`
	Messages []upstreamMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

type upstreamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// upstreamEvent 上游 SSE data 行的载荷
type upstreamEvent struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
	Usage *struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// StreamingHandler 流式后端适配器。
// 通过 HTTP SSE 消费上游增量输出，映射为 start/token/end 序列。
type StreamingHandler struct {
	cfg      Config
	client   *http.Client
	outcomes OutcomeRecorder
	logger   *zap.Logger
}

// NewStreamingHandler 创建流式后端适配器
func NewStreamingHandler(cfg Config, outcomes OutcomeRecorder, logger *zap.Logger) *StreamingHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if outcomes == nil {
		outcomes = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		outcomes: outcomes,
		logger:   logger.With(zap.String("component", "streaming_handler"), zap.String("backend", cfg.ID)),
	}
}

func (h *StreamingHandler) ID() string      { return h.cfg.ID }
func (h *StreamingHandler) Model() string   { return h.cfg.Model }
func (h *StreamingHandler) Streaming() bool { return true }

// Invoke 实现 Handler.Invoke。
// 连接建立失败直接返回 error（未发出任何 chunk，网关可降级）；
// 流中途失败以 error chunk 结束序列并记录熔断失败。
func (h *StreamingHandler) Invoke(ctx context.Context, req *types.Request) (<-chan types.Chunk, error) {
	resp, err := h.connect(ctx, req)
	if err != nil {
		h.outcomes.RecordOutcome(h.cfg.ID, false)
		return nil, err
	}

	ch := make(chan types.Chunk)
	go h.pump(ctx, resp, ch)
	return ch, nil
}

// connect 发起上游流式请求并校验响应头
func (h *StreamingHandler) connect(ctx context.Context, req *types.Request) (*http.Response, error) {
	body := upstreamRequest{
		Model:    h.cfg.Model,
		Messages: convertContext(req),
		Stream:   true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "marshal upstream request").
			WithCause(err).WithBackend(h.cfg.ID)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/stream", strings.TrimRight(h.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "build upstream request").
			WithCause(err).WithBackend(h.cfg.ID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if h.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrTransportFailure, "upstream connect failed").
			WithCause(err).WithBackend(h.cfg.ID).WithRetryable(true)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewError(types.ErrTransportFailure,
			fmt.Sprintf("upstream status %d: %s", resp.StatusCode, string(msg))).
			WithBackend(h.cfg.ID).WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}
	return resp, nil
}

// pump 将上游 SSE 流转换为 chunk 序列。
// 任何失败（含 panic）都收敛为一个 error chunk，保证序列必有终止。
func (h *StreamingHandler) pump(ctx context.Context, resp *http.Response, ch chan<- types.Chunk) {
	success := false
	terminated := false

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic recovered", zap.Any("panic", r))
			if !terminated {
				ch <- types.NewErrorChunk(types.NewError(types.ErrInternalError,
					fmt.Sprintf("handler panic: %v", r)).WithBackend(h.cfg.ID))
			}
			success = false
		}
		resp.Body.Close()
		close(ch)
		h.outcomes.RecordOutcome(h.cfg.ID, success)
	}()

	emit := func(c types.Chunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(types.NewStartChunk(startMeta(h.cfg.ID, h.cfg.Model))) {
		return
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// 上游未发 done 就断流，按传输失败处理
				terminated = emit(types.NewErrorChunk(
					types.NewError(types.ErrTransportFailure, "upstream stream truncated").
						WithBackend(h.cfg.ID).WithRetryable(true)))
				return
			}
			terminated = emit(types.NewErrorChunk(
				types.NewError(types.ErrTransportFailure, "upstream read failed").
					WithCause(err).WithBackend(h.cfg.ID).WithRetryable(true)))
			return
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "event:") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			terminated = emit(types.NewEndChunk(startMeta(h.cfg.ID, h.cfg.Model)))
			success = terminated
			return
		}

		var ev upstreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			h.logger.Warn("skipping malformed upstream event", zap.Error(err))
			continue
		}

		switch {
		case ev.Error != "":
			terminated = emit(types.NewErrorChunk(
				types.NewError(types.ErrTransportFailure, "upstream error: "+ev.Error).
					WithBackend(h.cfg.ID).WithRetryable(true)))
			return

		case ev.Done:
			meta := startMeta(h.cfg.ID, h.cfg.Model)
			if ev.Usage != nil {
				meta[types.MetaTokens] = ev.Usage.CompletionTokens
			}
			terminated = emit(types.NewEndChunk(meta))
			success = terminated
			return

		case ev.Delta != "":
			if !emit(types.NewTokenChunk(ev.Delta)) {
				return
			}
		}
	}
}

// convertContext 将请求上下文转换为上游消息序列
func convertContext(req *types.Request) []upstreamMessage {
	msgs := make([]upstreamMessage, 0, len(req.Context)+1)
	for _, turn := range req.Context {
		msgs = append(msgs, upstreamMessage{Role: string(turn.Role), Content: turn.Content})
	}
	msgs = append(msgs, upstreamMessage{Role: string(types.RoleUser), Content: req.Text})
	return msgs
}
