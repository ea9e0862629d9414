package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plancheck/compliance-api/internal/models"
)

func TestEmailRepositoryEnqueueDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEmailRepository(db)

	mock.ExpectExec("INSERT INTO email_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	email := &models.QueuedEmail{Recipient: "user@example.com", Subject: "Welcome", BodyHTML: "<p>hi</p>"}
	require.NoError(t, repo.Enqueue(context.Background(), email))
	assert.NotEmpty(t, email.ID)
	assert.Equal(t, models.EmailPending, email.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepositoryFindDeliverable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEmailRepository(db)

	now := time.Now().UTC()
	columns := []string{"id", "recipient", "subject", "body_html", "template", "status", "error_message", "attempts", "sent_at", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, recipient, subject, body_html, template, status, error_message, attempts, sent_at, created_at, updated_at FROM email_queue WHERE status IN ('pending', 'failed') AND attempts < $1 ORDER BY created_at ASC LIMIT $2")).
		WithArgs(3, 20).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("email-1", "a@example.com", "One", "", "invitation", "pending", nil, 0, nil, now, now).
			AddRow("email-2", "b@example.com", "Two", "", "invitation", "failed", "provider returned 502", 1, nil, now, now))

	emails, err := repo.FindDeliverable(context.Background(), 3, 20)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, models.EmailFailed, emails[1].Status)
	assert.Equal(t, 1, emails[1].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepositoryMarkSent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEmailRepository(db)

	sentAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE email_queue SET status = 'sent', sent_at = $2, error_message = NULL, updated_at = $2 WHERE id = $1")).
		WithArgs("email-1", sentAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "email-1", sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepositoryMarkFailedIncrementsAttempts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEmailRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE email_queue SET status = 'failed', error_message = $2, attempts = attempts + 1, updated_at = $3 WHERE id = $1")).
		WithArgs("email-1", "provider returned 502: relay refused", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "email-1", "provider returned 502: relay refused"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
