package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plancheck/compliance-api/internal/models"
)

// AttachmentRepository provides database access for attachment metadata.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository creates a new instance of AttachmentRepository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts an attachment metadata row.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO project_attachments (id, project_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at) VALUES (:id, :project_id, :file_name, :storage_path, :content_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// FindByID returns an attachment by identifier.
func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT id, project_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at FROM project_attachments WHERE id = $1 LIMIT 1`
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attachment by id: %w", err)
	}
	return &att, nil
}

// ListByProject returns attachments for a project, newest first.
func (r *AttachmentRepository) ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error) {
	const query = `SELECT id, project_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at FROM project_attachments WHERE project_id = $1 ORDER BY created_at DESC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, projectID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// Delete removes an attachment metadata row.
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM project_attachments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}
