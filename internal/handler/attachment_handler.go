package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/response"
)

// AttachmentHandler exposes project attachment endpoints.
type AttachmentHandler struct {
	auth    *service.AuthService
	service *service.AttachmentService
}

// NewAttachmentHandler creates a new handler.
func NewAttachmentHandler(auth *service.AuthService, svc *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{auth: auth, service: svc}
}

// Upload stores one uploaded file for a project.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to open upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	caller := &models.CallerIdentity{ID: claims.UserID, Email: claims.Email, Role: claims.Role}
	att, err := h.service.Upload(c.Request.Context(), caller,
		c.Param("projectId"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, att)
}

// List returns the attachments for a project.
func (h *AttachmentHandler) List(c *gin.Context) {
	attachments, err := h.service.List(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attachments, nil)
}

// Link issues a short-lived signed download link for an attachment.
func (h *AttachmentHandler) Link(c *gin.Context) {
	download, err := h.service.SignedDownload(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download serves the file behind a signed token. No session required;
// the token itself is the credential.
func (h *AttachmentHandler) Download(c *gin.Context) {
	att, file, err := h.service.Resolve(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	c.Header("Content-Type", att.ContentType)
	http.ServeContent(c.Writer, c.Request, att.FileName, att.CreatedAt, file)
}

// Delete removes an attachment. Admin only.
func (h *AttachmentHandler) Delete(c *gin.Context) {
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
