package ai

import (
	"errors"
	"testing"
)

const bailianMiddle = `{"request_id":"req-1","output":{"choices":[{"finish_reason":"null","message":{"content":"Hello"}}]}}`

const bailianLast = `{"request_id":"req-1","model":"qwen-plus-0919","output":{"choices":[{"finish_reason":"stop","message":{"content":"!"}}]},"usage":{"input_tokens":12,"output_tokens":34,"total_tokens":46}}`

func TestBaiLianIsLast(t *testing.T) {
	b := BaiLian{}
	if b.IsLast([]byte(bailianMiddle)) {
		t.Error("middle chunk classified as last")
	}
	if !b.IsLast([]byte(bailianLast)) {
		t.Error("stop chunk not classified as last")
	}
	if b.IsLast([]byte("{garbage")) {
		t.Error("garbage classified as last")
	}
}

func TestBaiLianDelta(t *testing.T) {
	b := BaiLian{}
	if got := b.Delta([]byte(bailianMiddle)); got != "Hello" {
		t.Errorf("delta = %q", got)
	}
	if got := b.Delta([]byte("{garbage")); got != "" {
		t.Errorf("garbage delta = %q", got)
	}
}

func TestBaiLianBuildFirst(t *testing.T) {
	b := BaiLian{}
	caller := Caller{UserID: "u-1", NickName: "Ann"}

	c, err := b.BuildFirst([]byte(bailianLast), "qwen-plus", caller)
	if err != nil {
		t.Fatalf("BuildFirst: %v", err)
	}
	if c.BaseInfo == nil {
		t.Fatal("first chunk missing BaseInfo")
	}
	if c.BaseInfo.BotName != "qwen-plus-0919" {
		t.Errorf("botName = %q, want upstream-reported name", c.BaseInfo.BotName)
	}
	if c.BaseInfo.UserID != "u-1" || c.BaseInfo.UserName != "Ann" {
		t.Errorf("baseInfo = %+v", c.BaseInfo)
	}
	if c.API.RequestID != "req-1" {
		t.Errorf("request_id = %q", c.API.RequestID)
	}

	// No model field upstream: the requested name stands in.
	c, err = b.BuildFirst([]byte(bailianMiddle), "qwen-plus", caller)
	if err != nil {
		t.Fatalf("BuildFirst: %v", err)
	}
	if c.BaseInfo.BotName != "qwen-plus" {
		t.Errorf("botName = %q, want requested name", c.BaseInfo.BotName)
	}
}

func TestBaiLianBuildLast(t *testing.T) {
	b := BaiLian{}
	c, err := b.BuildLast([]byte(bailianLast))
	if err != nil {
		t.Fatalf("BuildLast: %v", err)
	}
	if c.TokenInfo == nil {
		t.Fatal("last chunk missing TokenInfo")
	}
	if c.TokenInfo.PromptTokens != 12 || c.TokenInfo.AnswerTokens != 34 || c.TokenInfo.TotalTokens != 46 {
		t.Errorf("tokenInfo = %+v", c.TokenInfo)
	}
	if c.TokenInfo.CreateTime == "" {
		t.Error("createTime empty")
	}
	if c.API.FinishReason != "stop" {
		t.Errorf("finish_reason = %q", c.API.FinishReason)
	}
}

func TestBaiLianMalformedChunk(t *testing.T) {
	b := BaiLian{}
	if _, err := b.BuildMiddle([]byte("{garbage")); !errors.Is(err, ErrMalformedChunk) {
		t.Fatalf("BuildMiddle = %v, want ErrMalformedChunk", err)
	}
}

func TestBaiLianBuildPayload(t *testing.T) {
	b := BaiLian{}
	params := map[string]any{
		"model":      "qwen-plus",
		"parameters": map[string]any{"stream": true, "incremental_output": true},
	}
	history := []Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	payload, err := b.BuildPayload(params, history, "how are you")
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	input, ok := payload["input"].(map[string]any)
	if !ok {
		t.Fatal("payload missing input object")
	}
	msgs, ok := input["messages"].([]Turn)
	if !ok {
		t.Fatal("input missing messages")
	}
	if len(msgs) != 3 || msgs[2].Role != "user" || msgs[2].Content != "how are you" {
		t.Errorf("messages = %v", msgs)
	}
	if payload["model"] != "qwen-plus" {
		t.Error("static parameters not carried over")
	}

	if _, err := b.BuildPayload(params, nil, "   "); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("blank prompt = %v, want ErrBadPayload", err)
	}
}
