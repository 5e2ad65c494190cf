package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BaiLian reframes DashScope-style streams: chunks nest content under
// output.choices[*].message, the terminal chunk carries
// finish_reason "stop" plus token usage, and correlation runs on
// request_id.
type BaiLian struct{}

type bailianChunk struct {
	RequestID string `json:"request_id"`
	Model     string `json:"model"`
	Output    struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (BaiLian) parse(raw []byte) (*bailianChunk, error) {
	var c bailianChunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}
	return &c, nil
}

func (b BaiLian) BuildPayload(params map[string]any, history []Turn, prompt string) (map[string]any, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrBadPayload)
	}
	messages := append(append([]Turn{}, history...), Turn{Role: "user", Content: prompt})
	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["input"] = map[string]any{"messages": messages}
	return payload, nil
}

func (b BaiLian) IsLast(raw []byte) bool {
	c, err := b.parse(raw)
	if err != nil || len(c.Output.Choices) == 0 {
		return false
	}
	return c.Output.Choices[0].FinishReason == "stop"
}

func (b BaiLian) Delta(raw []byte) string {
	c, err := b.parse(raw)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, choice := range c.Output.Choices {
		sb.WriteString(choice.Message.Content)
	}
	return sb.String()
}

func (b BaiLian) api(c *bailianChunk) APIChunk {
	out := APIChunk{RequestID: c.RequestID}
	if len(c.Output.Choices) > 0 {
		out.Content = c.Output.Choices[0].Message.Content
		out.FinishReason = c.Output.Choices[0].FinishReason
	}
	return out
}

func (b BaiLian) BuildFirst(raw []byte, fallbackBot string, caller Caller) (Chunk, error) {
	c, err := b.parse(raw)
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
		API: b.api(c),
	}, nil
}

func (b BaiLian) BuildMiddle(raw []byte) (Chunk, error) {
	c, err := b.parse(raw)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Kind: KindMiddle, API: b.api(c)}, nil
}

func (b BaiLian) BuildLast(raw []byte) (Chunk, error) {
	c, err := b.parse(raw)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		Kind:      KindLast,
		API:       b.api(c),
		TokenInfo: NewTokenInfo(b.usage(c)),
	}, nil
}

func (b BaiLian) usage(c *bailianChunk) Usage {
	if c.Usage == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens: c.Usage.InputTokens,
		AnswerTokens: c.Usage.OutputTokens,
		TotalTokens:  c.Usage.TotalTokens,
	}
}

func (b BaiLian) Usage(raw []byte) Usage {
	c, err := b.parse(raw)
	if err != nil {
		return Usage{}
	}
	return b.usage(c)
}

// BaiLianHeaders opts the endpoint into SSE framing.
func BaiLianHeaders() map[string]string {
	return map[string]string{"X-DashScope-SSE": "enable"}
}
