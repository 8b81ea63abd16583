package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryTurnStore()
	defer store.Close()
	ctx := context.Background()

	turns := []*Turn{
		{ConversationID: "conv-1", Role: "user", Content: "three days in Lisbon?"},
		{ConversationID: "conv-1", Role: "assistant", Content: "Day 1: Alfama..."},
		{ConversationID: "conv-2", Role: "user", Content: "unrelated"},
	}
	for _, turn := range turns {
		require.NoError(t, store.SaveTurn(ctx, turn))
		assert.NotEmpty(t, turn.ID, "store should assign an ID")
		assert.False(t, turn.CreatedAt.IsZero(), "store should assign a timestamp")
	}

	got, err := store.GetTurns(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "assistant", got[1].Role)
}

func TestMemoryStoreLimitReturnsNewestOldestFirst(t *testing.T) {
	store := NewMemoryTurnStore()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveTurn(ctx, &Turn{
			ConversationID: "conv-1",
			Role:           "user",
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	got, err := store.GetTurns(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "message 3", got[0].Content)
	assert.Equal(t, "message 4", got[1].Content)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryTurnStore()
	defer store.Close()
	ctx := context.Background()

	original := &Turn{ConversationID: "conv-1", Role: "user", Content: "original"}
	require.NoError(t, store.SaveTurn(ctx, original))

	original.Content = "mutated after save"

	got, err := store.GetTurns(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "original", got[0].Content)

	got[0].Content = "mutated after read"
	again, err := store.GetTurns(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestMemoryStoreInvalidInput(t *testing.T) {
	store := NewMemoryTurnStore()
	defer store.Close()
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveTurn(ctx, nil), ErrInvalidInput)
	assert.ErrorIs(t, store.SaveTurn(ctx, &Turn{Role: "user"}), ErrInvalidInput)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryTurnStore()
	ctx := context.Background()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.SaveTurn(ctx, &Turn{ConversationID: "c"}), ErrStoreClosed)
	_, err := store.GetTurns(ctx, "c", 0)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
}

func TestMemoryStoreConcurrentSaves(t *testing.T) {
	store := NewMemoryTurnStore()
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.SaveTurn(ctx, &Turn{
				ConversationID: "conv-1",
				Role:           "assistant",
				Content:        fmt.Sprintf("turn %d", i),
			})
		}(i)
	}
	wg.Wait()

	got, err := store.GetTurns(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
