package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisTurnStore is a Redis-based implementation of TurnStore.
// Suitable for distributed production deployments. Turns are appended to a
// per-conversation list; entries are JSON encoded.
type RedisTurnStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTurnStore creates a new Redis-based turn store
func NewRedisTurnStore(cfg RedisConfig) (*RedisTurnStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "tripflow:"
	}

	return &RedisTurnStore{
		client:    client,
		keyPrefix: keyPrefix + "conv:",
	}, nil
}

// conversationKey returns the Redis key for a conversation's turn list
func (s *RedisTurnStore) conversationKey(conversationID string) string {
	return s.keyPrefix + conversationID + ":turns"
}

// SaveTurn persists a single turn
func (s *RedisTurnStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil || turn.ConversationID == "" {
		return ErrInvalidInput
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	return s.client.RPush(ctx, s.conversationKey(turn.ConversationID), data).Err()
}

// GetTurns retrieves the most recent turns of a conversation, oldest first
func (s *RedisTurnStore) GetTurns(ctx context.Context, conversationID string, limit int) ([]*Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	entries, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange turns: %w", err)
	}

	turns := make([]*Turn, 0, len(entries))
	for _, entry := range entries {
		var t Turn
		if err := json.Unmarshal([]byte(entry), &t); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, &t)
	}
	return turns, nil
}

// Ping checks if the store is healthy
func (s *RedisTurnStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisTurnStore) Close() error {
	return s.client.Close()
}
