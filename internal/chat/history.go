package chat

import (
	"context"

	"github.com/qianniu/llmbot/internal/ai"
)

// HistoryAssembler turns persisted exchanges back into provider turns.
type HistoryAssembler struct {
	repo *Repo
}

func NewHistoryAssembler(repo *Repo) *HistoryAssembler {
	return &HistoryAssembler{repo: repo}
}

// Assemble loads the most recent exchanges of the conversation and
// expands each into a user turn followed by an assistant turn, oldest
// first. requested may only lower the model's record cap, never raise
// it; requested <= 0 keeps the cap as-is.
func (h *HistoryAssembler) Assemble(ctx context.Context, conversationID string, modelCap, requested int) ([]ai.Turn, error) {
	limit := modelCap
	if requested > 0 && requested < limit {
		limit = requested
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := h.repo.Latest(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first; turns go out oldest first.
	turns := make([]ai.Turn, 0, len(rows)*2)
	for i := len(rows) - 1; i >= 0; i-- {
		turns = append(turns,
			ai.Turn{Role: "user", Content: rows[i].QueryContent},
			ai.Turn{Role: "assistant", Content: rows[i].AnswerContent},
		)
	}
	return turns, nil
}
