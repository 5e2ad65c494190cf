package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qianniu/llmbot/internal/common"
	"github.com/qianniu/llmbot/internal/registry"
)

// ModelNames lists the registered model names.
func (h *Handler) ModelNames(c *gin.Context) {
	names, err := h.Models.Names(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50013, "failed to list models")
		return
	}
	common.OK(c, names)
}

// ModelsByProvider lists the models one provider serves.
func (h *Handler) ModelsByProvider(c *gin.Context) {
	ms, err := h.Models.ByProvider(c.Request.Context(), c.Param("provider"))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50013, "failed to list models")
		return
	}
	common.OK(c, ms)
}

type registerModelRequest struct {
	Name          string `json:"name" binding:"required"`
	Type          int    `json:"type"`
	Provider      string `json:"provider" binding:"required"`
	URL           string `json:"url" binding:"required,url"`
	Parameters    string `json:"parameters"`
	AllowRoles    string `json:"allowRoles"`
	RecordNumbers int    `json:"recordNumbers"`
}

// RegisterModel adds a model row, admin only.
func (h *Handler) RegisterModel(c *gin.Context) {
	var req registerModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40008, "invalid model payload")
		return
	}
	m := &registry.Model{
		Name:          req.Name,
		Type:          req.Type,
		Provider:      req.Provider,
		URL:           req.URL,
		Parameters:    req.Parameters,
		AllowRoles:    req.AllowRoles,
		RecordNumbers: req.RecordNumbers,
	}
	if err := h.Models.Register(c.Request.Context(), m); err != nil {
		common.Fail(c, http.StatusBadRequest, 40009, err.Error())
		return
	}
	common.OK(c, m)
}
