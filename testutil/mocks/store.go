// =============================================================================
// 💾 MockTurnStore - 轮次存储模拟实现
// =============================================================================
// 用于测试的轮次存储模拟，支持错误注入与异步写入观察
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/tripflow/persistence"
)

// MockTurnStore 是 TurnStore 的模拟实现
type MockTurnStore struct {
	mu sync.Mutex

	turns []*persistence.Turn

	// 错误注入
	saveErr error
	getErr  error
	pingErr error

	saveCalls int
}

// NewMockTurnStore 创建新的 MockTurnStore
func NewMockTurnStore() *MockTurnStore {
	return &MockTurnStore{}
}

// WithSaveError 注入 SaveTurn 失败
func (m *MockTurnStore) WithSaveError(err error) *MockTurnStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithGetError 注入 GetTurns 失败
func (m *MockTurnStore) WithGetError(err error) *MockTurnStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithPingError 注入 Ping 失败
func (m *MockTurnStore) WithPingError(err error) *MockTurnStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// SaveTurn 实现 persistence.TurnStore
func (m *MockTurnStore) SaveTurn(ctx context.Context, turn *persistence.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *turn
	m.turns = append(m.turns, &copied)
	return nil
}

// GetTurns 实现 persistence.TurnStore
func (m *MockTurnStore) GetTurns(ctx context.Context, conversationID string, limit int) ([]*persistence.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*persistence.Turn
	for _, t := range m.turns {
		if t.ConversationID == conversationID {
			copied := *t
			out = append(out, &copied)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Ping 实现 persistence.TurnStore
func (m *MockTurnStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// Close 实现 persistence.TurnStore
func (m *MockTurnStore) Close() error { return nil }

// SavedTurns 返回已保存轮次的拷贝
func (m *MockTurnStore) SavedTurns() []*persistence.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*persistence.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// SaveCalls 返回 SaveTurn 的调用次数（含失败）
func (m *MockTurnStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}
