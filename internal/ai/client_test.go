package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func collect(t *testing.T, chunks <-chan []byte, errs <-chan error) ([]string, error) {
	t.Helper()
	var out []string
	for c := range chunks {
		out = append(out, string(c))
	}
	return out, <-errs
}

func TestStreamDeliversInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, "data: {\"n\":%d}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d chunks, want 5", len(got))
	}
	for i, g := range got {
		want := fmt.Sprintf(`{"n":%d}`, i)
		if g != want {
			t.Errorf("chunk %d = %q, want %q", i, g, want)
		}
	}
}

func TestStreamSkipsSSEMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "id: 1\nevent: result\n:HTTP_STATUS/200\ndata: {\"ok\":true}\n\n")
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 1 || got[0] != `{"ok":true}` {
		t.Fatalf("got %v", got)
	}
}

func TestStreamNonOKFailsFastWithBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	_, err := collect(t, chunks, errs)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d", se.Code)
	}
	if se.Body != `{"error":"rate limited"}` {
		t.Errorf("body = %q", se.Body)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("made %d attempts, protocol errors must not retry", n)
	}
}

func TestStreamRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			// Drop the connection before writing a response.
			conn, _, _ := w.(http.Hijacker).Hijack()
			conn.Close()
			return
		}
		fmt.Fprint(w, "data: {\"ok\":true}\n\n")
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	start := time.Now()
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream error after retries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %v", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("made %d attempts, want 3", n)
	}
	// Two backoff sleeps: 100ms + 200ms.
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("elapsed %v, want >= 300ms of backoff", elapsed)
	}
}

func TestStreamGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if err == nil {
		t.Fatal("stream succeeded, want exhausted retries")
	}
	if len(got) != 0 {
		t.Errorf("got %v chunks from a dead endpoint", got)
	}
	// Initial attempt plus three retries.
	if n := calls.Load(); n != 4 {
		t.Errorf("made %d attempts, want 4", n)
	}
}

func TestStreamNoRetryAfterFirstChunk(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "data: {\"n\":0}\n\n")
		w.(http.Flusher).Flush()
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if err == nil {
		t.Fatal("truncated stream reported success")
	}
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want the one delivered before the cut", len(got))
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("made %d attempts, must not restart after first byte", n)
	}
}

func TestStreamIdleTimeoutCutsStalledStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"n\":0}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	// Generous connect timeout, tight idle window.
	c := NewClient("key", 10*time.Second, 100*time.Millisecond, nil)
	chunks, errs := c.Stream(context.Background(), srv.URL, map[string]any{})
	got, err := collect(t, chunks, errs)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want idle deadline", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want the one delivered before the stall", len(got))
	}
}

func TestStreamUnmarshalablePayload(t *testing.T) {
	c := NewClient("key", time.Second, 0, nil)
	chunks, errs := c.Stream(context.Background(), "http://example.invalid", map[string]any{
		"bad": func() {},
	})
	_, err := collect(t, chunks, errs)
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("error = %v, want ErrBadPayload", err)
	}
}

func TestStreamContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"n\":0}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient("key", 5*time.Second, 0, nil)
	chunks, errs := c.Stream(ctx, srv.URL, map[string]any{})

	<-chunks
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				if err := <-errs; err == nil {
					t.Fatal("cancelled stream reported success")
				}
				return
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancellation")
		}
	}
}
