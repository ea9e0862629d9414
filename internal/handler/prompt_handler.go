package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// PromptHandler exposes prompt configuration management. Mutations are
// admin-only.
type PromptHandler struct {
	auth    *service.AuthService
	service *service.PromptService
}

// NewPromptHandler creates a new handler.
func NewPromptHandler(auth *service.AuthService, svc *service.PromptService) *PromptHandler {
	return &PromptHandler{auth: auth, service: svc}
}

// List returns all prompt configurations.
func (h *PromptHandler) List(c *gin.Context) {
	prompts, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompts, nil)
}

// Get returns one prompt configuration.
func (h *PromptHandler) Get(c *gin.Context) {
	prompt, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompt, nil)
}

// Upsert creates or replaces a prompt configuration. Admin only.
func (h *PromptHandler) Upsert(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	var req models.UpsertPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid prompt payload"))
		return
	}

	prompt, err := h.service.Upsert(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompt, nil)
}

// Delete removes a prompt configuration. Admin only.
func (h *PromptHandler) Delete(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), caller, c.Param("key")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
