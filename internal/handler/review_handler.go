package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// ReviewHandler exposes the AI compliance review endpoint. Reviews are
// limited to reviewer roles.
type ReviewHandler struct {
	auth    *service.AuthService
	service *service.ReviewService
	metrics *service.MetricsService
}

// NewReviewHandler creates a new handler.
func NewReviewHandler(auth *service.AuthService, svc *service.ReviewService, metrics *service.MetricsService) *ReviewHandler {
	return &ReviewHandler{auth: auth, service: svc, metrics: metrics}
}

// Run executes one compliance review.
func (h *ReviewHandler) Run(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.ReviewerRoles...)
	if !ok {
		return
	}

	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	start := time.Now()
	result, err := h.service.Run(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveReview(time.Since(start))

	response.JSON(c, http.StatusOK, result, nil)
}
