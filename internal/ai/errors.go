package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrBadPayload marks caller-argument failures. Never retried.
	ErrBadPayload = errors.New("ai: bad request payload")

	// ErrMalformedChunk marks a provider chunk that failed to parse.
	ErrMalformedChunk = errors.New("ai: malformed chunk")
)

// StatusError is a non-2xx upstream response. The stream fails fast on
// it; the body is kept as diagnostic detail.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: upstream status %d: %s", e.Code, e.Body)
}

const (
	ErrTypeChunkBuild = "CHUNK_BUILD_FAILED"
	ErrTypeConnection = "API_CONNECTION_ERROR"
	ErrTypeJSON       = "JSON_PROCESSING_ERROR"
	ErrTypeUnknown    = "UNKNOWN_ERROR"
)

// ErrorChunk is delivered in-band when a stream cannot continue. It is
// the terminal chunk of a failed exchange.
type ErrorChunk struct {
	ErrorType    string `json:"errorType"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDetail  string `json:"errorDetail"`
	RawChunk     string `json:"rawChunk,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// NewErrorChunk classifies err into the client error taxonomy. raw is
// the provider chunk being processed when the failure happened, empty
// when the failure was not chunk-scoped.
func NewErrorChunk(err error, raw string) ErrorChunk {
	ec := ErrorChunk{
		ErrorType:    ErrTypeUnknown,
		ErrorCode:    500,
		ErrorMessage: "unexpected stream failure",
		RawChunk:     raw,
		Timestamp:    time.Now().UnixMilli(),
	}
	if err != nil {
		ec.ErrorDetail = err.Error()
	}

	var se *StatusError
	var jsonSyntax *json.SyntaxError
	var jsonType *json.UnmarshalTypeError
	var netErr net.Error
	switch {
	case errors.As(err, &se):
		ec.ErrorType = ErrTypeConnection
		ec.ErrorCode = se.Code
		ec.ErrorMessage = "model endpoint rejected the request"
		ec.ErrorDetail = se.Body
	case errors.Is(err, ErrMalformedChunk),
		errors.As(err, &jsonSyntax),
		errors.As(err, &jsonType):
		ec.ErrorType = ErrTypeJSON
		ec.ErrorCode = 422
		ec.ErrorMessage = "failed to parse model response"
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		ec.ErrorType = ErrTypeConnection
		ec.ErrorCode = 502
		ec.ErrorMessage = "model endpoint unreachable"
	case errors.Is(err, errBuildChunk):
		ec.ErrorType = ErrTypeChunkBuild
		ec.ErrorCode = 500
		ec.ErrorMessage = "failed to assemble response chunk"
	}
	return ec
}

// errBuildChunk tags failures raised while assembling a canonical
// chunk, as opposed to parsing the provider's raw one.
var errBuildChunk = errors.New("ai: chunk build failed")
