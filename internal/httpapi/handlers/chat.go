package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/qianniu/llmbot/internal/auth"
	"github.com/qianniu/llmbot/internal/chat"
	"github.com/qianniu/llmbot/internal/common"
	"github.com/qianniu/llmbot/internal/httpapi/middleware"
)

// Chat streams a model exchange as newline-delimited base64 chunks.
// Validation and entitlement failures are rejected before any bytes
// stream; everything after the first write arrives in-band.
func (h *Handler) Chat(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40011, "invalid chat payload")
		return
	}

	st, err := h.ChatSvc.Open(c.Request.Context(), c.Param("provider"), ident, req)
	if err != nil {
		var denied *chat.DeniedError
		var demoted *chat.DemotedError
		switch {
		case errors.Is(err, chat.ErrBlankPrompt):
			common.Fail(c, http.StatusBadRequest, 40012, "prompt must not be blank")
		case errors.Is(err, chat.ErrUnknownModel):
			common.Fail(c, http.StatusNotFound, 40403, "unknown model")
		case errors.Is(err, chat.ErrProviderMismatch):
			common.Fail(c, http.StatusBadRequest, 40013, "model is not served by this provider")
		case errors.As(err, &demoted):
			// The membership lapsed; hand over the reissued credential
			// and have the client retry with it.
			c.Header("X-Refresh-Token", demoted.Token)
			common.Fail(c, http.StatusUnauthorized, 40106, demoted.Error())
		case errors.As(err, &denied):
			if denied.Reason == auth.ReasonStaleCredential {
				common.Fail(c, http.StatusUnauthorized, 40105, denied.Reason)
			} else {
				common.Fail(c, http.StatusForbidden, 40302, denied.Reason)
			}
		default:
			log.Errorf("open chat stream: %v", err)
			common.Fail(c, http.StatusInternalServerError, 50015, "failed to open stream")
		}
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	for line := range st.Lines {
		if _, err := c.Writer.Write(line); err != nil {
			// Client went away; the request context cancellation stops
			// the upstream stream.
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
