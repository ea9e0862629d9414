package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plancheck/compliance-api/internal/models"
)

// EmailRepository provides database access for the persisted email queue.
type EmailRepository struct {
	db *sqlx.DB
}

// NewEmailRepository creates a new instance of EmailRepository.
func NewEmailRepository(db *sqlx.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// Enqueue inserts a new pending email.
func (r *EmailRepository) Enqueue(ctx context.Context, email *models.QueuedEmail) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now
	if email.Status == "" {
		email.Status = models.EmailPending
	}
	const query = `INSERT INTO email_queue (id, recipient, subject, body_html, template, status, error_message, attempts, sent_at, created_at, updated_at) VALUES (:id, :recipient, :subject, :body_html, :template, :status, :error_message, :attempts, :sent_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// FindDeliverable returns queue entries still in a non-terminal state
// with attempts below the retry ceiling, oldest first.
func (r *EmailRepository) FindDeliverable(ctx context.Context, maxAttempts, limit int) ([]models.QueuedEmail, error) {
	const query = `SELECT id, recipient, subject, body_html, template, status, error_message, attempts, sent_at, created_at, updated_at FROM email_queue WHERE status IN ('pending', 'failed') AND attempts < $1 ORDER BY created_at ASC LIMIT $2`
	var emails []models.QueuedEmail
	if err := r.db.SelectContext(ctx, &emails, query, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("find deliverable emails: %w", err)
	}
	return emails, nil
}

// MarkSent records a successful delivery.
func (r *EmailRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE email_queue SET status = 'sent', sent_at = $2, error_message = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt with the provider's
// response body as the error message.
func (r *EmailRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const query = `UPDATE email_queue SET status = 'failed', error_message = $2, attempts = attempts + 1, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return nil
}
