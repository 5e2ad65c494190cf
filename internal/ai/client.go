package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond

	// Provider chunks can be large; matches the scanner headroom used
	// for SSE payloads elsewhere in the codebase.
	maxScanTokenSize = 2 * 1024 * 1024
)

// Client streams chat completions from one provider endpoint. timeout
// bounds connection establishment and the wait for response headers;
// idleTimeout bounds the gap between chunks once the stream is open.
type Client struct {
	hc      *http.Client
	apiKey  string
	headers map[string]string
	idle    time.Duration
}

// NewClient builds a streaming client. extraHeaders are sent verbatim
// on every request (e.g. the DashScope SSE opt-in header). A zero
// idleTimeout falls back to timeout.
func NewClient(apiKey string, timeout, idleTimeout time.Duration, extraHeaders map[string]string) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if idleTimeout <= 0 {
		idleTimeout = timeout
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
	}
	return &Client{
		hc:      &http.Client{Transport: transport},
		apiKey:  apiKey,
		headers: extraHeaders,
		idle:    idleTimeout,
	}
}

// Stream POSTs payload to url and emits raw provider chunks on the
// returned channel. Transient connection failures before the first
// chunk are retried up to maxRetries times with doubling backoff;
// non-2xx responses and payload errors fail fast. Once a chunk has
// been delivered the attempt is final: a mid-stream failure surfaces
// on the error channel rather than restarting the exchange.
func (c *Client) Stream(ctx context.Context, url string, payload any) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 16)
	errs := make(chan error, 1)

	body, err := json.Marshal(payload)
	if err != nil {
		errs <- fmt.Errorf("%w: %v", ErrBadPayload, err)
		close(chunks)
		close(errs)
		return chunks, errs
	}

	go func() {
		defer close(chunks)
		defer close(errs)

		backoff := initialBackoff
		for attempt := 0; ; attempt++ {
			delivered, err := c.attempt(ctx, url, body, chunks)
			if err == nil {
				return
			}
			if delivered || !retryable(err) || attempt >= maxRetries {
				errs <- err
				return
			}
			log.WithFields(log.Fields{
				"url":     url,
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			}).Warnf("stream attempt failed, retrying: %v", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			backoff *= 2
		}
	}()

	return chunks, errs
}

// attempt runs one full request. delivered reports whether any chunk
// reached the caller, which disqualifies the attempt from retry.
func (c *Client) attempt(ctx context.Context, url string, body []byte, chunks chan<- []byte) (delivered bool, err error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("request model endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	// Idle watchdog: cancel the request when no bytes arrive within
	// the configured idle window.
	watchdog := time.AfterFunc(c.idle, cancel)
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		watchdog.Reset(c.idle)
		data, ok := ssePayload(scanner.Text())
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return delivered, nil
		}
		select {
		case chunks <- []byte(data):
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return delivered, fmt.Errorf("read model stream: %w: no data for %s", context.DeadlineExceeded, c.idle)
		}
		return delivered, fmt.Errorf("read model stream: %w", err)
	}
	return delivered, nil
}

// ssePayload extracts the payload from one stream line. Lines carrying
// SSE metadata (id:, event:, comments) are skipped; bare JSON lines
// pass through for providers that do not frame with SSE.
func ssePayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", false
	case strings.HasPrefix(line, "data:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	case strings.HasPrefix(line, "{"):
		return line, true
	default:
		return "", false
	}
}

// retryable reports whether err is a transient connection failure.
// Protocol rejections and argument errors always fail fast.
func retryable(err error) bool {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return false
	case errors.Is(err, ErrBadPayload):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
