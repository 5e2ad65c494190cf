package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QianFan reframes OpenAI-compatible streams: incremental text lives at
// choices[*].delta.content, the terminal chunk reports finish_reason
// "stop", and correlation runs on id/object.
type QianFan struct{}

type qianfanChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (QianFan) parse(raw []byte) (*qianfanChunk, error) {
	var c qianfanChunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	return &c, nil
}

func (q QianFan) BuildPayload(params map[string]any, history []Turn, prompt string) (map[string]any, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrBadPayload)
	}
	messages := append(append([]Turn{}, history...), Turn{Role: "user", Content: prompt})
	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["messages"] = messages
	return payload, nil
}

func (q QianFan) IsLast(raw []byte) bool {
	c, err := q.parse(raw)
	if err != nil || len(c.Choices) == 0 {
		return false
	}
	return c.Choices[0].FinishReason == "stop"
}

func (q QianFan) Delta(raw []byte) string {
	c, err := q.parse(raw)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, choice := range c.Choices {
		sb.WriteString(choice.Delta.Content)
	}
	return sb.String()
}

func (q QianFan) api(c *qianfanChunk) APIChunk {
	out := APIChunk{ID: c.ID, Object: c.Object}
	if len(c.Choices) > 0 {
		out.Content = c.Choices[0].Delta.Content
		out.FinishReason = c.Choices[0].FinishReason
	}
	return out
}

func (q QianFan) BuildFirst(raw []byte, fallbackBot string, caller Caller) (Chunk, error) {
	c, err := q.parse(raw)
	if err != nil {
		return Chunk{}, err
	}
	bot := c.Model
	if bot == "" {
		bot = fallbackBot
	}
	return Chunk{
		Kind: KindFirst,
		BaseInfo: &BaseInfo{
			BotName:  bot,
			UserID:   caller.UserID,
			UserName: caller.NickName,
		},
		API: q.api(c),
	}, nil
}

func (q QianFan) BuildMiddle(raw []byte) (Chunk, error) {
	c, err := q.parse(raw)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Kind: KindMiddle, API: q.api(c)}, nil
}

func (q QianFan) BuildLast(raw []byte) (Chunk, error) {
	c, err := q.parse(raw)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		Kind:      KindLast,
		API:       q.api(c),
		TokenInfo: NewTokenInfo(q.usage(c)),
	}, nil
}

func (q QianFan) usage(c *qianfanChunk) Usage {
	if c.Usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens: c.Usage.PromptTokens,
		AnswerTokens: c.Usage.CompletionTokens,
		TotalTokens:  c.Usage.TotalTokens,
	}
}

func (q QianFan) Usage(raw []byte) Usage {
	c, err := q.parse(raw)
	if err != nil {
		return Usage{}
	}
	return q.usage(c)
}
