package ai

import "time"

// ChunkKind classifies canonical client-facing chunks.
type ChunkKind string

const (
	KindFirst  ChunkKind = "first"
	KindMiddle ChunkKind = "middle"
	KindLast   ChunkKind = "last"
	KindError  ChunkKind = "error"
)

// Caller identifies who the stream is for; stamped into first chunks.
type Caller struct {
	UserID   string
	NickName string
}

// Turn is one chat message in provider order (oldest first).
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the upstream-reported token accounting. Only the terminal
// chunk of a stream carries it.
type Usage struct {
	PromptTokens int
	AnswerTokens int
	TotalTokens  int
}

type BaseInfo struct {
	BotName  string `json:"botName"`
	UserID   string `json:"userID"`
	UserName string `json:"userName"`
}

// APIChunk holds the fields extracted from a raw provider chunk.
// Providers fill their own correlation fields (request_id vs id/object).
type APIChunk struct {
	RequestID    string `json:"request_id,omitempty"`
	ID           string `json:"id,omitempty"`
	Object       string `json:"object,omitempty"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
}

type TokenInfo struct {
	TotalTokens  int    `json:"total_tokens"`
	PromptTokens int    `json:"promptTokens"`
	AnswerTokens int    `json:"answerTokens"`
	CreateTime   string `json:"createTime"`
}

// Chunk is the canonical streaming unit returned to clients. First
// chunks carry BaseInfo, last chunks carry TokenInfo, every chunk
// carries the extracted APIChunkJson.
type Chunk struct {
	Kind      ChunkKind  `json:"-"`
	BaseInfo  *BaseInfo  `json:"BaseInfo,omitempty"`
	API       APIChunk   `json:"APIChunkJson"`
	TokenInfo *TokenInfo `json:"TokenInfo,omitempty"`
}

// NewTokenInfo stamps usage with the close-of-stream timestamp.
func NewTokenInfo(u Usage) *TokenInfo {
	return &TokenInfo{
		TotalTokens:  u.TotalTokens,
		PromptTokens: u.PromptTokens,
		AnswerTokens: u.AnswerTokens,
		CreateTime:   time.Now().Format("2006-01-02 15:04"),
	}
}
