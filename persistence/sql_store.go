package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// turnRecord is the GORM row model for a persisted turn. Metadata is
// stored as a JSON blob so the open key set survives schema-free.
type turnRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"index:idx_turns_conversation;size:64;not null"`
	Role           string    `gorm:"size:16;not null"`
	Content        string    `gorm:"type:text"`
	Metadata       string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index:idx_turns_conversation"`
}

func (turnRecord) TableName() string { return "conversation_turns" }

// SQLTurnStore is a GORM-backed implementation of TurnStore.
// sqlite (pure Go driver) serves single-node deployments and tests,
// postgres serves shared deployments.
type SQLTurnStore struct {
	db *gorm.DB
}

// NewSQLiteTurnStore opens (and migrates) a sqlite-backed store.
// path may be ":memory:" for ephemeral stores.
func NewSQLiteTurnStore(path string) (*SQLTurnStore, error) {
	return newSQLTurnStore(sqlite.Open(path))
}

// NewPostgresTurnStore opens (and migrates) a postgres-backed store.
func NewPostgresTurnStore(dsn string) (*SQLTurnStore, error) {
	return newSQLTurnStore(postgres.Open(dsn))
}

func newSQLTurnStore(dialector gorm.Dialector) (*SQLTurnStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&turnRecord{}); err != nil {
		return nil, fmt.Errorf("migrate turns table: %w", err)
	}
	return &SQLTurnStore{db: db}, nil
}

// SaveTurn persists a single turn
func (s *SQLTurnStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil || turn.ConversationID == "" {
		return ErrInvalidInput
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	meta := ""
	if len(turn.Metadata) > 0 {
		data, err := json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(data)
	}

	rec := turnRecord{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		Role:           turn.Role,
		Content:        turn.Content,
		Metadata:       meta,
		CreatedAt:      turn.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// GetTurns retrieves the most recent turns of a conversation, oldest first
func (s *SQLTurnStore) GetTurns(ctx context.Context, conversationID string, limit int) ([]*Turn, error) {
	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []turnRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}

	// newest-first from the query, return oldest-first
	turns := make([]*Turn, len(records))
	for i, rec := range records {
		t := &Turn{
			ID:             rec.ID,
			ConversationID: rec.ConversationID,
			Role:           rec.Role,
			Content:        rec.Content,
			CreatedAt:      rec.CreatedAt,
		}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &t.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		turns[len(records)-1-i] = t
	}
	return turns, nil
}

// Ping checks if the store is healthy
func (s *SQLTurnStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close closes the store
func (s *SQLTurnStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
