package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qianniu/llmbot/internal/common"
	"github.com/qianniu/llmbot/internal/httpapi/middleware"
	"github.com/qianniu/llmbot/internal/models"
)

// Me returns the caller's own account.
func (h *Handler) Me(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40104, "not authenticated")
		return
	}
	u, err := h.Users.GetByEmail(c.Request.Context(), ident.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "account no longer exists")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to load account")
		return
	}
	common.OK(c, models.Sanitize(u))
}

// UserLookup is the admin lookup by id, uuid, or email.
func (h *Handler) UserLookup(c *gin.Context) {
	ctx := c.Request.Context()

	var u *models.User
	var err error
	switch {
	case c.Query("email") != "":
		u, err = h.Users.GetByEmail(ctx, c.Query("email"))
	case c.Query("uuid") != "":
		u, err = h.Users.GetByUUID(ctx, c.Query("uuid"))
	case c.Query("id") != "":
		var id uint64
		id, err = strconv.ParseUint(c.Query("id"), 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 40006, "id must be numeric")
			return
		}
		u, err = h.Users.GetByID(ctx, id)
	default:
		common.Fail(c, http.StatusBadRequest, 40006, "one of id, uuid, email is required")
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40402, "no such user")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to load account")
		return
	}
	common.OK(c, models.Sanitize(u))
}

// UsersByRole lists accounts holding one role, admin only.
func (h *Handler) UsersByRole(c *gin.Context) {
	role, err := strconv.Atoi(c.Query("role"))
	if err != nil || role < models.RoleNormal || role > models.RoleAdmin {
		common.Fail(c, http.StatusBadRequest, 40007, "role must be a known role number")
		return
	}
	us, err := h.Users.ByRole(c.Request.Context(), role)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to list users")
		return
	}
	out := make([]models.SafeUser, 0, len(us))
	for i := range us {
		out = append(out, models.Sanitize(&us[i]))
	}
	common.OK(c, out)
}
