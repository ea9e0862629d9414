package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plancheck/compliance-api/internal/models"
)

// InvitationRepository provides database access for user invitations.
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new instance of InvitationRepository.
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create inserts a new invitation.
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO invitations (id, email, role, token, status, invited_by, expires_at, accepted_at, created_at) VALUES (:id, :email, :role, :token, :status, :invited_by, :expires_at, :accepted_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// FindByID returns an invitation by identifier.
func (r *InvitationRepository) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	const query = `SELECT id, email, role, token, status, invited_by, expires_at, accepted_at, created_at FROM invitations WHERE id = $1 LIMIT 1`
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invitation by id: %w", err)
	}
	return &inv, nil
}

// FindByToken returns an invitation by its accept token.
func (r *InvitationRepository) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	const query = `SELECT id, email, role, token, status, invited_by, expires_at, accepted_at, created_at FROM invitations WHERE token = $1 LIMIT 1`
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invitation by token: %w", err)
	}
	return &inv, nil
}

// FindPendingByEmail returns a pending invitation for the email, if any.
func (r *InvitationRepository) FindPendingByEmail(ctx context.Context, email string) (*models.Invitation, error) {
	const query = `SELECT id, email, role, token, status, invited_by, expires_at, accepted_at, created_at FROM invitations WHERE email = $1 AND status = 'pending' LIMIT 1`
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pending invitation: %w", err)
	}
	return &inv, nil
}

// List returns invitations based on filters with total count.
func (r *InvitationRepository) List(ctx context.Context, filter models.InvitationFilter) ([]models.Invitation, int, error) {
	baseQuery := `FROM invitations WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Email != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Email)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, email, role, token, status, invited_by, expires_at, accepted_at, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var invitations []models.Invitation
	if err := r.db.SelectContext(ctx, &invitations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list invitations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invitations: %w", err)
	}

	return invitations, total, nil
}

// UpdateStatus transitions an invitation into a new lifecycle state.
func (r *InvitationRepository) UpdateStatus(ctx context.Context, id string, status models.InvitationStatus, acceptedAt *time.Time) error {
	const query = `UPDATE invitations SET status = $2, accepted_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, acceptedAt); err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	return nil
}
