// =============================================================================
// 🔌 MockHandler - 后端 Handler 模拟实现
// =============================================================================
// 用于测试的后端 Handler 模拟，支持分块脚本、错误注入和延迟注入
//
// 使用方法:
//
//	handler := mocks.NewMockHandler("swift").WithText("hello world")
//	ch, err := handler.Invoke(ctx, req)
// =============================================================================
package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tripflow/types"
)

// MockHandler 是后端 Handler 的模拟实现
type MockHandler struct {
	mu sync.Mutex

	id        string
	model     string
	streaming bool

	// 脚本化输出
	chunks []types.Chunk

	// 错误注入：Invoke 启动前失败
	invokeErr error

	// 延迟注入：每个分块发送前等待
	chunkDelay time.Duration

	// 调用记录
	invokeCalls int
	requests    []*types.Request
}

// NewMockHandler 创建新的 MockHandler
func NewMockHandler(id string) *MockHandler {
	return &MockHandler{
		id:        id,
		model:     id + "-test",
		streaming: true,
	}
}

// WithModel 设置模型标识
func (m *MockHandler) WithModel(model string) *MockHandler {
	m.model = model
	return m
}

// WithStreaming 设置是否为流式后端
func (m *MockHandler) WithStreaming(streaming bool) *MockHandler {
	m.streaming = streaming
	return m
}

// WithChunks 设置 Invoke 发送的分块脚本
func (m *MockHandler) WithChunks(chunks ...types.Chunk) *MockHandler {
	m.chunks = chunks
	return m
}

// WithText 用一段文本生成合法的分块序列（start + 逐词 token + end）
func (m *MockHandler) WithText(text string) *MockHandler {
	chunks := []types.Chunk{
		types.NewStartChunk(types.Metadata{
			types.MetaBackend: m.id,
			types.MetaModel:   m.model,
		}),
	}
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if w != "" {
			chunks = append(chunks, types.NewTokenChunk(w))
		}
	}
	chunks = append(chunks, types.NewEndChunk(types.Metadata{
		types.MetaBackend: m.id,
		types.MetaModel:   m.model,
	}))
	m.chunks = chunks
	return m
}

// WithStreamError 在 start 与部分 token 之后以 error 分块终结
func (m *MockHandler) WithStreamError(err *types.Error, tokensBefore ...string) *MockHandler {
	chunks := []types.Chunk{
		types.NewStartChunk(types.Metadata{types.MetaBackend: m.id}),
	}
	for _, tok := range tokensBefore {
		chunks = append(chunks, types.NewTokenChunk(tok))
	}
	chunks = append(chunks, types.NewErrorChunk(err))
	m.chunks = chunks
	return m
}

// WithInvokeError 注入启动前失败
func (m *MockHandler) WithInvokeError(err error) *MockHandler {
	m.invokeErr = err
	return m
}

// WithChunkDelay 注入每个分块发送前的延迟
func (m *MockHandler) WithChunkDelay(d time.Duration) *MockHandler {
	m.chunkDelay = d
	return m
}

// ID 实现 backend.Handler
func (m *MockHandler) ID() string { return m.id }

// Model 实现 backend.Handler
func (m *MockHandler) Model() string { return m.model }

// Streaming 实现 backend.Handler
func (m *MockHandler) Streaming() bool { return m.streaming }

// Invoke 实现 backend.Handler
func (m *MockHandler) Invoke(ctx context.Context, req *types.Request) (<-chan types.Chunk, error) {
	m.mu.Lock()
	m.invokeCalls++
	m.requests = append(m.requests, req)
	chunks := m.chunks
	invokeErr := m.invokeErr
	delay := m.chunkDelay
	m.mu.Unlock()

	if invokeErr != nil {
		return nil, invokeErr
	}

	ch := make(chan types.Chunk)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// InvokeCalls 返回 Invoke 的调用次数
func (m *MockHandler) InvokeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invokeCalls
}

// LastRequest 返回最近一次收到的请求
func (m *MockHandler) LastRequest() *types.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
