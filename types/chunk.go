package types

import "time"

// ChunkKind identifies one unit of a streamed response.
type ChunkKind string

const (
	ChunkStart      ChunkKind = "start"
	ChunkToken      ChunkKind = "token"
	ChunkToolCall   ChunkKind = "tool_call"
	ChunkToolResult ChunkKind = "tool_result"
	ChunkEnd        ChunkKind = "end"
	ChunkError      ChunkKind = "error"
)

// Terminal reports whether the kind ends a chunk sequence.
// Every sequence carries exactly one terminal chunk, as its last element.
func (k ChunkKind) Terminal() bool {
	return k == ChunkEnd || k == ChunkError
}

// Well-known metadata keys. Unknown keys are passed through opaquely;
// consumers must not fail on keys they do not recognize.
const (
	MetaModel    = "model"    // model identifier that produced the chunk
	MetaBackend  = "backend"  // backend id that actually answered
	MetaTokens   = "tokens"   // estimated completion token count (int)
	MetaCostUSD  = "cost_usd" // estimated cost in USD (float64)
	MetaToolName = "tool_name"
	MetaReason   = "reason" // routing or error reason code
)

// Metadata is an open string-keyed map of auxiliary chunk fields.
type Metadata map[string]any

// Clone returns a shallow copy. A nil map clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with the entries of other applied on top.
func (m Metadata) Merge(other Metadata) Metadata {
	if len(other) == 0 {
		return m.Clone()
	}
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Chunk is one unit of a streamed response: a token, a control marker,
// a tool event, or an error. Chunks are produced by a backend handler,
// consumed by the session, and never mutated after emission.
type Chunk struct {
	Kind      ChunkKind `json:"kind"`
	Content   string    `json:"content,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether the chunk ends its sequence.
func (c Chunk) IsTerminal() bool {
	return c.Kind.Terminal()
}

// NewStartChunk creates the opening chunk of a sequence.
func NewStartChunk(meta Metadata) Chunk {
	return Chunk{Kind: ChunkStart, Metadata: meta, Timestamp: time.Now()}
}

// NewTokenChunk creates a token chunk carrying a text delta.
func NewTokenChunk(text string) Chunk {
	return Chunk{Kind: ChunkToken, Content: text, Timestamp: time.Now()}
}

// NewToolCallChunk creates a tool invocation marker.
func NewToolCallChunk(toolName string, meta Metadata) Chunk {
	m := meta.Clone()
	if m == nil {
		m = Metadata{}
	}
	m[MetaToolName] = toolName
	return Chunk{Kind: ChunkToolCall, Metadata: m, Timestamp: time.Now()}
}

// NewEndChunk creates the successful terminal chunk.
func NewEndChunk(meta Metadata) Chunk {
	return Chunk{Kind: ChunkEnd, Metadata: meta, Timestamp: time.Now()}
}

// NewErrorChunk creates the failing terminal chunk. Only the user-safe
// message of err crosses the wire; the cause stays server-side.
func NewErrorChunk(err *Error) Chunk {
	return Chunk{
		Kind:      ChunkError,
		Content:   err.SafeMessage(),
		Metadata:  Metadata{MetaReason: string(err.Code)},
		Timestamp: time.Now(),
	}
}
