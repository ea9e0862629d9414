package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/storage"
)

type attachmentRepository interface {
	Create(ctx context.Context, att *models.Attachment) error
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error)
	Delete(ctx context.Context, id string) error
}

type attachmentAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AttachmentService stores project files on local storage and issues
// time-limited signed download links for them.
type AttachmentService struct {
	repo    attachmentRepository
	audit   attachmentAuditWriter
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	config  config.AttachmentsConfig
}

// NewAttachmentService constructs an AttachmentService instance.
func NewAttachmentService(repo attachmentRepository, audit attachmentAuditWriter, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg config.AttachmentsConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 25 * 1024 * 1024
	}
	return &AttachmentService{repo: repo, audit: audit, storage: store, signer: signer, logger: logger, config: cfg}
}

// Upload validates and stores one uploaded file plus its metadata row.
func (s *AttachmentService) Upload(ctx context.Context, caller *models.CallerIdentity, projectID, fileName, contentType string, size int64, r io.Reader) (*models.Attachment, error) {
	if projectID == "" || fileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "project id and file name are required")
	}
	if size > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %q is not allowed", contentType))
	}

	// Reject uploads that lie about their declared size.
	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if int64(len(data)) > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes))
	}

	relPath := filepath.Join(projectID, uuid.NewString()+strings.ToLower(filepath.Ext(fileName)))
	if _, err := s.storage.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}

	att := &models.Attachment{
		ProjectID:   projectID,
		FileName:    fileName,
		StoragePath: relPath,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		UploadedBy:  caller.ID,
	}
	if err := s.repo.Create(ctx, att); err != nil {
		if cleanupErr := s.storage.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to clean up orphaned attachment file", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attachment metadata")
	}

	s.recordAudit(ctx, caller, models.AuditActionAttachmentUpload, att)
	return att, nil
}

// List returns the attachments for a project, newest first.
func (s *AttachmentService) List(ctx context.Context, projectID string) ([]models.Attachment, error) {
	if projectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "project id is required")
	}
	attachments, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return attachments, nil
}

// SignedDownload issues a short-lived download link for an attachment.
func (s *AttachmentService) SignedDownload(ctx context.Context, id string) (*models.AttachmentDownload, error) {
	att, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(att.ID, att.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &models.AttachmentDownload{
		URL:       "/attachments/download?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a signed token and opens the underlying file. The
// caller owns the returned handle.
func (s *AttachmentService) Resolve(ctx context.Context, token string) (*models.Attachment, *os.File, error) {
	attachmentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}

	att, err := s.find(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	if att.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}

	file, err := s.storage.Open(att.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "attachment file missing from storage")
	}
	return att, file, nil
}

// Delete removes the metadata row and the stored file.
func (s *AttachmentService) Delete(ctx context.Context, caller *models.CallerIdentity, id string) error {
	att, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, att.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment metadata")
	}
	if err := s.storage.Delete(att.StoragePath); err != nil {
		s.logger.Warn("failed to delete attachment file", zap.String("path", att.StoragePath), zap.Error(err))
	}

	s.recordAudit(ctx, caller, models.AuditActionAttachmentDelete, att)
	return nil
}

func (s *AttachmentService) find(ctx context.Context, id string) (*models.Attachment, error) {
	att, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	return att, nil
}

func (s *AttachmentService) mimeAllowed(contentType string) bool {
	if len(s.config.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

func (s *AttachmentService) recordAudit(ctx context.Context, caller *models.CallerIdentity, action string, att *models.Attachment) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"project_id": att.ProjectID,
		"file_name":  att.FileName,
		"size_bytes": att.SizeBytes,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &caller.ID,
		Action:     action,
		Resource:   "project_attachments",
		ResourceID: &att.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record attachment audit log", zap.Error(err))
	}
}
