package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisTurnStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisTurnStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreSaveAndGet(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTurn(ctx, &Turn{
		ConversationID: "conv-1",
		Role:           "user",
		Content:        "weekend in Kyoto",
	}))
	require.NoError(t, store.SaveTurn(ctx, &Turn{
		ConversationID: "conv-1",
		Role:           "assistant",
		Content:        "Start with Fushimi Inari at dawn.",
		Metadata:       map[string]any{"backend": "atlas", "tokens": float64(42)},
	}))

	got, err := store.GetTurns(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "assistant", got[1].Role)
	assert.Equal(t, "atlas", got[1].Metadata["backend"])
	assert.Equal(t, float64(42), got[1].Metadata["tokens"])
}

func TestRedisStoreLimit(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveTurn(ctx, &Turn{
			ConversationID: "conv-1",
			Role:           "user",
			Content:        fmt.Sprintf("message %d", i),
		}))
	}

	got, err := store.GetTurns(ctx, "conv-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "message 2", got[0].Content)
	assert.Equal(t, "message 4", got[2].Content)
}

func TestRedisStoreEmptyConversation(t *testing.T) {
	store := newTestRedisStore(t)

	got, err := store.GetTurns(context.Background(), "no-such-conversation", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStoreInvalidInput(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveTurn(ctx, nil), ErrInvalidInput)
	assert.ErrorIs(t, store.SaveTurn(ctx, &Turn{Role: "user"}), ErrInvalidInput)
}

func TestRedisStoreConnectionFailure(t *testing.T) {
	_, err := NewRedisTurnStore(RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
