package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// OrdinanceHandler exposes read and maintenance endpoints for the
// ordinance table.
type OrdinanceHandler struct {
	auth    *service.AuthService
	service *service.OrdinanceService
}

// NewOrdinanceHandler creates a new handler.
func NewOrdinanceHandler(auth *service.AuthService, svc *service.OrdinanceService) *OrdinanceHandler {
	return &OrdinanceHandler{auth: auth, service: svc}
}

// List returns ordinances matching query filters.
func (h *OrdinanceHandler) List(c *gin.Context) {
	ordinances, pagination, err := h.service.List(c.Request.Context(), ordinanceFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ordinances, pagination)
}

// Get returns one ordinance.
func (h *OrdinanceHandler) Get(c *gin.Context) {
	ord, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ord, nil)
}

// Update replaces the mutable fields of an ordinance. Admin only.
func (h *OrdinanceHandler) Update(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	var req models.UpdateOrdinanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ordinance payload"))
		return
	}

	ord, err := h.service.Update(c.Request.Context(), caller, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ord, nil)
}

// Delete removes an ordinance. Admin only.
func (h *OrdinanceHandler) Delete(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), caller, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export streams the filtered ordinance set as CSV or PDF.
func (h *OrdinanceHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	data, contentType, filename, err := h.service.Export(c.Request.Context(), ordinanceFilterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func ordinanceFilterFromQuery(c *gin.Context) models.OrdinanceFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	return models.OrdinanceFilter{
		Jurisdiction: c.Query("jurisdiction"),
		Zone:         c.Query("zone"),
		Category:     c.Query("category"),
		Search:       c.Query("search"),
		Page:         page,
		PageSize:     pageSize,
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}
}
