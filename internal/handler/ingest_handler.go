package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// IngestHandler exposes the ordinance ingestion endpoints. Both are
// admin-only and go through the authorization gate on every request.
type IngestHandler struct {
	auth       *service.AuthService
	ingest     *service.IngestService
	ordinances *service.OrdinanceService
	metrics    *service.MetricsService
	config     config.IngestConfig
}

// NewIngestHandler creates a new handler.
func NewIngestHandler(auth *service.AuthService, ingest *service.IngestService, ordinances *service.OrdinanceService, metrics *service.MetricsService, cfg config.IngestConfig) *IngestHandler {
	return &IngestHandler{auth: auth, ingest: ingest, ordinances: ordinances, metrics: metrics, config: cfg}
}

// Import ingests pre-parsed tabular data with explicit column mappings.
func (h *IngestHandler) Import(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ingestion payload"))
		return
	}

	report, err := h.ingest.Import(c.Request.Context(), caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.finishImport(c, report)
}

// ImportFile ingests an uploaded .csv or .xlsx document. The column
// mappings ride along as a JSON-encoded form field.
func (h *IngestHandler) ImportFile(c *gin.Context) {
	caller, ok := authorizeCaller(c, h.auth, models.RoleAdmin)
	if !ok {
		return
	}

	if h.config.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadSize)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}

	var mappings []models.ColumnMapping
	if raw := c.PostForm("columnMappings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "columnMappings must be valid JSON"))
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to open upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	report, err := h.ingest.ImportFile(c.Request.Context(), caller, fileHeader.Filename, file, mappings)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.finishImport(c, report)
}

func (h *IngestHandler) finishImport(c *gin.Context, report *models.IngestReport) {
	h.metrics.ObserveIngest(report.SuccessCount, report.ErrorCount)
	if report.SuccessCount > 0 && h.ordinances != nil {
		h.ordinances.InvalidateListCache(c.Request.Context())
	}
	response.JSON(c, http.StatusOK, report, nil)
}
