package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/jobs"
)

type invitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	FindByID(ctx context.Context, id string) (*models.Invitation, error)
	FindByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindPendingByEmail(ctx context.Context, email string) (*models.Invitation, error)
	List(ctx context.Context, filter models.InvitationFilter) ([]models.Invitation, int, error)
	UpdateStatus(ctx context.Context, id string, status models.InvitationStatus, acceptedAt *time.Time) error
}

type invitationUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type invitationEmailSender interface {
	Enqueue(ctx context.Context, email *models.QueuedEmail) error
}

// InvitationService manages the invite-accept onboarding flow. New
// accounts are only ever created through an accepted invitation.
type InvitationService struct {
	repo      invitationRepository
	users     invitationUserRepository
	emails    invitationEmailSender
	dispatch  *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	config    config.InvitationsConfig
}

// NewInvitationService constructs an InvitationService instance.
// The dispatch queue is optional; when present a job is pushed after
// each enqueued email so delivery starts without waiting for the
// reconciliation tick.
func NewInvitationService(repo invitationRepository, users invitationUserRepository, emails invitationEmailSender, dispatch *jobs.Queue, validate *validator.Validate, logger *zap.Logger, cfg config.InvitationsConfig) *InvitationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	return &InvitationService{repo: repo, users: users, emails: emails, dispatch: dispatch, validator: validate, logger: logger, config: cfg}
}

// Create issues a new invitation and queues the invitation email.
func (s *InvitationService) Create(ctx context.Context, caller *models.CallerIdentity, req models.CreateInvitationRequest) (*models.Invitation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation request")
	}
	if !models.ValidRole(req.Role) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", req.Role))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing user")
	}

	if _, err := s.repo.FindPendingByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a pending invitation for this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending invitations")
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invitation token")
	}

	inv := &models.Invitation{
		Email:     email,
		Role:      req.Role,
		Token:     token,
		Status:    models.InvitationPending,
		InvitedBy: caller.ID,
		ExpiresAt: time.Now().UTC().Add(s.config.Expiry),
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitation")
	}

	s.sendInvitationEmail(ctx, inv)
	s.recordAudit(ctx, caller, models.AuditActionInvitationCreate, inv)

	return inv, nil
}

// List returns invitations matching the filter.
func (s *InvitationService) List(ctx context.Context, filter models.InvitationFilter) ([]models.Invitation, *models.Pagination, error) {
	invitations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return invitations, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Revoke cancels a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, caller *models.CallerIdentity, id string) error {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if inv.Status != models.InvitationPending {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("invitation is %s, only pending invitations can be revoked", inv.Status))
	}

	if err := s.repo.UpdateStatus(ctx, inv.ID, models.InvitationRevoked, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke invitation")
	}

	s.recordAudit(ctx, caller, models.AuditActionInvitationRevoke, inv)
	return nil
}

// Resend queues the invitation email again for a pending invitation.
func (s *InvitationService) Resend(ctx context.Context, caller *models.CallerIdentity, id string) error {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if inv.Status != models.InvitationPending {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("invitation is %s, only pending invitations can be resent", inv.Status))
	}
	if time.Now().UTC().After(inv.ExpiresAt) {
		if err := s.repo.UpdateStatus(ctx, inv.ID, models.InvitationExpired, nil); err != nil {
			s.logger.Warn("failed to mark invitation expired", zap.String("invitation_id", inv.ID), zap.Error(err))
		}
		return appErrors.Clone(appErrors.ErrInvitationExpired, "invitation has expired, create a new one")
	}

	s.sendInvitationEmail(ctx, inv)
	s.logger.Info("invitation resent",
		zap.String("invitation_id", inv.ID),
		zap.String("resent_by", caller.ID))
	return nil
}

// Accept redeems an invitation token and creates the user account with
// the invited role. Expired invitations are marked as such on access.
func (s *InvitationService) Accept(ctx context.Context, token string, req models.AcceptInvitationRequest) (*models.User, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invitation token is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept request")
	}

	inv, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}

	switch inv.Status {
	case models.InvitationPending:
	case models.InvitationAccepted:
		return nil, appErrors.Clone(appErrors.ErrConflict, "invitation has already been accepted")
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("invitation is %s", inv.Status))
	}

	if time.Now().UTC().After(inv.ExpiresAt) {
		if err := s.repo.UpdateStatus(ctx, inv.ID, models.InvitationExpired, nil); err != nil {
			s.logger.Warn("failed to mark invitation expired", zap.String("invitation_id", inv.ID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrInvitationExpired, "invitation has expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        inv.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         inv.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, inv.ID, models.InvitationAccepted, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise invitation")
	}

	s.recordAudit(ctx, &models.CallerIdentity{ID: user.ID, Email: user.Email, Role: user.Role}, models.AuditActionInvitationAccept, inv)
	s.logger.Info("invitation accepted",
		zap.String("invitation_id", inv.ID),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))

	return user, nil
}

func (s *InvitationService) sendInvitationEmail(ctx context.Context, inv *models.Invitation) {
	if s.emails == nil {
		return
	}

	acceptURL := fmt.Sprintf("%s?token=%s", strings.TrimRight(s.config.BaseURL, "/"), inv.Token)
	body := fmt.Sprintf(
		"<p>You have been invited to the compliance review platform as <strong>%s</strong>.</p>"+
			"<p><a href=\"%s\">Accept your invitation</a> before %s.</p>",
		inv.Role, acceptURL, inv.ExpiresAt.Format("January 2, 2006"))

	email := &models.QueuedEmail{
		Recipient: inv.Email,
		Subject:   "You're invited to the compliance review platform",
		BodyHTML:  body,
		Template:  "invitation",
	}
	if err := s.emails.Enqueue(ctx, email); err != nil {
		s.logger.Warn("failed to queue invitation email", zap.String("invitation_id", inv.ID), zap.Error(err))
		return
	}

	if s.dispatch != nil {
		if err := s.dispatch.Enqueue(jobs.Job{ID: email.ID, Type: "email.dispatch", Payload: email.ID}); err != nil {
			s.logger.Debug("email dispatch trigger skipped", zap.Error(err))
		}
	}
}

func (s *InvitationService) recordAudit(ctx context.Context, caller *models.CallerIdentity, action string, inv *models.Invitation) {
	payload, _ := json.Marshal(map[string]string{
		"email": inv.Email,
		"role":  string(inv.Role),
	})
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &caller.ID,
		Action:     action,
		Resource:   "invitations",
		ResourceID: &inv.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record invitation audit log", zap.Error(err))
	}
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
