package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// NotifyHandler exposes notification endpoints: a manual email queue
// trigger and the Teams webhook relay. Admin only.
type NotifyHandler struct {
	auth   *service.AuthService
	emails *service.EmailService
	teams  *service.TeamsService
}

// NewNotifyHandler creates a new handler.
func NewNotifyHandler(auth *service.AuthService, emails *service.EmailService, teams *service.TeamsService) *NotifyHandler {
	return &NotifyHandler{auth: auth, emails: emails, teams: teams}
}

// ProcessEmailQueue runs one delivery pass over the email queue.
func (h *NotifyHandler) ProcessEmailQueue(c *gin.Context) {
	if _, ok := authorizeCaller(c, h.auth, models.RoleAdmin); !ok {
		return
	}

	processed, err := h.emails.ProcessQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"processed": processed}, nil)
}

// SendTeams posts a message card to the configured Teams webhook.
func (h *NotifyHandler) SendTeams(c *gin.Context) {
	if _, ok := authorizeCaller(c, h.auth, models.RoleAdmin); !ok {
		return
	}

	var msg models.TeamsMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teams payload"))
		return
	}

	if err := h.teams.Send(c.Request.Context(), msg); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"message": "notification sent"}, nil)
}
