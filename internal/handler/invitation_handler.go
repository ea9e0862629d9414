package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// InvitationHandler exposes the invitation lifecycle. Everything except
// Accept is admin-only.
type InvitationHandler struct {
	auth    *service.AuthService
	service *service.InvitationService
}

// NewInvitationHandler creates a new handler.
func NewInvitationHandler(auth *service.AuthService, svc *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{auth: auth, service: svc}
}

// Create issues a new invitation and queues the invitation email.
func (h *InvitationHandler) Create(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	var req models.CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}

	inv, err := h.service.Create(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inv)
}

// List returns invitations matching query filters.
func (h *InvitationHandler) List(c *gin.Context) {
	if _, ok := authorizeCaller(c, h.auth, models.RoleAdmin); !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.InvitationFilter{
		Email:    c.Query("email"),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := c.Query("status"); raw != "" {
		status := models.InvitationStatus(raw)
		filter.Status = &status
	}

	invitations, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invitations, pagination)
}

// Revoke cancels a pending invitation.
func (h *InvitationHandler) Revoke(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	if err := h.service.Revoke(c.Request.Context(), caller, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Resend queues the invitation email again.
func (h *InvitationHandler) Resend(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	if err := h.service.Resend(c.Request.Context(), caller, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "invitation email queued"}, nil)
}

// Accept redeems an invitation token and creates the account. This is
// the one public invitation endpoint.
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req models.AcceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accept payload"))
		return
	}

	user, err := h.service.Accept(c.Request.Context(), c.Query("token"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}
