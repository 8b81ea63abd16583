package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior exchange in the conversation context.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MaxContextTurns bounds the conversation context carried per request.
// Older turns are dropped, newest kept.
const MaxContextTurns = 32

// Request is one inbound peer message plus its conversation context.
// It is immutable once created and discarded after its response completes.
type Request struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Context        []Turn    `json:"context,omitempty"`
	ArrivalTime    time.Time `json:"arrival_time"`
}

// NewRequest creates a request with a fresh ID and bounded context.
func NewRequest(userID, conversationID, text string, context []Turn) *Request {
	if len(context) > MaxContextTurns {
		context = context[len(context)-MaxContextTurns:]
	}
	return &Request{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
		Text:           text,
		Context:        context,
		ArrivalTime:    time.Now(),
	}
}

// RoutingDecision is produced exactly once per request and names the
// backend the classifier selected, before any breaker check.
type RoutingDecision struct {
	Backend string        `json:"backend"`
	Reason  string        `json:"reason"`
	Latency time.Duration `json:"latency"`
}
