package persistence

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
)

// Turn is one persisted conversation turn. The assistant turn content is
// the ordered concatenation of all token chunks of the response; empty
// content is valid (a backend may legitimately answer with nothing).
type Turn struct {
	// ID is the unique identifier for the turn
	ID string `json:"id"`

	// ConversationID groups turns into one conversation
	ConversationID string `json:"conversation_id"`

	// Role is the author of the turn (user/assistant)
	Role string `json:"role"`

	// Content is the full turn text
	Content string `json:"content"`

	// Metadata carries attribution and accounting fields
	// (backend, model, tokens, duration_ms, ...)
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the turn completed
	CreatedAt time.Time `json:"created_at"`
}

// TurnStore defines the persistence collaborator interface.
// Implementations must be safe for concurrent use; callers invoke
// SaveTurn from detached goroutines.
type TurnStore interface {
	// SaveTurn persists a single turn
	SaveTurn(ctx context.Context, turn *Turn) error

	// GetTurns retrieves the most recent turns of a conversation,
	// oldest first, up to limit (0 means all)
	GetTurns(ctx context.Context, conversationID string, limit int) ([]*Turn, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store
	Close() error
}
