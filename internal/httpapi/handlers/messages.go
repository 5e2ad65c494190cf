package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qianniu/llmbot/internal/chat"
	"github.com/qianniu/llmbot/internal/common"
	"github.com/qianniu/llmbot/internal/httpapi/middleware"
)

// MyMessages pages through the caller's persisted exchanges.
func (h *Handler) MyMessages(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	ctx := c.Request.Context()

	u, err := h.Users.GetByEmail(ctx, ident.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "account no longer exists")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to load account")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	msgs, total, err := h.Messages.ByUser(ctx, u.UUID, page, pageSize)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50014, "failed to load messages")
		return
	}
	common.OK(c, gin.H{"total": total, "messages": msgs})
}

// ConversationHistory returns the caller's latest exchanges with one
// model, newest first.
func (h *Handler) ConversationHistory(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	modelName := c.Param("model")
	if modelName == "" {
		common.Fail(c, http.StatusBadRequest, 40010, "model name required")
		return
	}
	ctx := c.Request.Context()

	u, err := h.Users.GetByEmail(ctx, ident.Email)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to load account")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	msgs, err := h.Messages.Latest(ctx, chat.ConversationID(modelName, u.UUID), limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50014, "failed to load messages")
		return
	}
	common.OK(c, msgs)
}
