package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTurnStore 是 TurnStore 的内存实现。
// 适合开发和测试，数据在重启时丢失。
type MemoryTurnStore struct {
	turns  map[string][]*Turn // conversationID -> 按时间排序的轮次
	mu     sync.RWMutex
	closed bool
}

// NewMemoryTurnStore 创建内存轮次存储
func NewMemoryTurnStore() *MemoryTurnStore {
	return &MemoryTurnStore{
		turns: make(map[string][]*Turn),
	}
}

// SaveTurn 持久化单个轮次
func (s *MemoryTurnStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil || turn.ConversationID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// 未设置则生成 ID 与时间
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	// 存一份拷贝，调用方后续修改不影响存储
	copied := *turn
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], &copied)
	return nil
}

// GetTurns 返回会话最近的轮次（时间升序）
func (s *MemoryTurnStore) GetTurns(ctx context.Context, conversationID string, limit int) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	all := s.turns[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]*Turn, len(all))
	for i, t := range all {
		copied := *t
		out[i] = &copied
	}
	return out, nil
}

// Ping 检查存储是否健康
func (s *MemoryTurnStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 关闭存储
func (s *MemoryTurnStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
