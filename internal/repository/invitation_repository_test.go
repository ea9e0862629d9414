package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plancheck/compliance-api/internal/models"
)

func TestInvitationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectExec("INSERT INTO invitations").
		WillReturnResult(sqlmock.NewResult(1, 1))

	inv := &models.Invitation{
		Email:     "new@example.com",
		Role:      models.RolePM,
		Token:     "token-1",
		Status:    models.InvitationPending,
		InvitedBy: "admin-1",
		ExpiresAt: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), inv))
	assert.NotEmpty(t, inv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryFindByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	now := time.Now().UTC()
	columns := []string{"id", "email", "role", "token", "status", "invited_by", "expires_at", "accepted_at", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, role, token, status, invited_by, expires_at, accepted_at, created_at FROM invitations WHERE token = $1 LIMIT 1")).
		WithArgs("token-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("inv-1", "new@example.com", "pm", "token-1", "pending", "admin-1", now.Add(time.Hour), nil, now))

	inv, err := repo.FindByToken(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryFindPendingByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	mock.ExpectQuery("SELECT .* FROM invitations WHERE email = .* AND status = 'pending' LIMIT 1").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindPendingByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvitationRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvitationRepository(db)

	acceptedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invitations SET status = $2, accepted_at = $3 WHERE id = $1")).
		WithArgs("inv-1", string(models.InvitationAccepted), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "inv-1", models.InvitationAccepted, &acceptedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
