package ai

import (
	"errors"
	"testing"
)

const qianfanMiddle = `{"id":"as-x1","object":"chat.completion","choices":[{"delta":{"content":"part"},"finish_reason":""}]}`

const qianfanLast = `{"id":"as-x1","object":"chat.completion","model":"ernie-speed-128k","choices":[{"delta":{"content":"done"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":9,"total_tokens":14}}`

const qianfanTruncated = `{"id":"as-x1","object":"chat.completion","choices":[{"delta":{"content":"cut"},"finish_reason":"length"}]}`

func TestQianFanIsLast(t *testing.T) {
	q := QianFan{}
	if q.IsLast([]byte(qianfanMiddle)) {
		t.Error("middle chunk classified as last")
	}
	if !q.IsLast([]byte(qianfanLast)) {
		t.Error("stop chunk not classified as last")
	}
	if q.IsLast([]byte(qianfanTruncated)) {
		t.Error("only finish_reason stop marks the terminal chunk")
	}
}

func TestQianFanDelta(t *testing.T) {
	q := QianFan{}
	if got := q.Delta([]byte(qianfanMiddle)); got != "part" {
		t.Errorf("delta = %q", got)
	}
}

func TestQianFanBuildFirst(t *testing.T) {
	q := QianFan{}
	c, err := q.BuildFirst([]byte(qianfanMiddle), "ernie-speed", Caller{UserID: "u-2", NickName: "Bo"})
	if err != nil {
		t.Fatalf("BuildFirst: %v", err)
	}
	if c.BaseInfo == nil || c.BaseInfo.BotName != "ernie-speed" {
		t.Fatalf("baseInfo = %+v", c.BaseInfo)
	}
	if c.API.ID != "as-x1" || c.API.Object != "chat.completion" {
		t.Errorf("api = %+v", c.API)
	}
	if c.API.RequestID != "" {
		t.Errorf("request_id = %q, want empty for this provider", c.API.RequestID)
	}
}

func TestQianFanBuildLast(t *testing.T) {
	q := QianFan{}
	c, err := q.BuildLast([]byte(qianfanLast))
	if err != nil {
		t.Fatalf("BuildLast: %v", err)
	}
	if c.TokenInfo == nil {
		t.Fatal("last chunk missing TokenInfo")
	}
	if c.TokenInfo.PromptTokens != 5 || c.TokenInfo.AnswerTokens != 9 || c.TokenInfo.TotalTokens != 14 {
		t.Errorf("tokenInfo = %+v", c.TokenInfo)
	}
}

func TestQianFanBuildPayload(t *testing.T) {
	q := QianFan{}
	payload, err := q.BuildPayload(map[string]any{"model": "ernie-speed", "temperature": 0.8}, nil, "hello")
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	msgs, ok := payload["messages"].([]Turn)
	if !ok {
		t.Fatal("payload missing top-level messages")
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("messages = %v", msgs)
	}
	if _, nested := payload["input"]; nested {
		t.Error("messages must not be nested under input for this provider")
	}

	if _, err := q.BuildPayload(nil, nil, ""); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("blank prompt = %v, want ErrBadPayload", err)
	}
}

func TestQianFanMalformedChunk(t *testing.T) {
	q := QianFan{}
	if _, err := q.BuildMiddle([]byte("not json")); !errors.Is(err, ErrMalformedChunk) {
		t.Fatalf("BuildMiddle = %v, want ErrMalformedChunk", err)
	}
}
