package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	"github.com/plancheck/compliance-api/pkg/config"
)

type recordingInvitationRepo struct {
	created []*models.Invitation
}

func (r *recordingInvitationRepo) Create(ctx context.Context, inv *models.Invitation) error {
	inv.ID = "inv-1"
	r.created = append(r.created, inv)
	return nil
}

func (r *recordingInvitationRepo) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	return nil, sql.ErrNoRows
}

func (r *recordingInvitationRepo) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	return nil, sql.ErrNoRows
}

func (r *recordingInvitationRepo) FindPendingByEmail(ctx context.Context, email string) (*models.Invitation, error) {
	return nil, sql.ErrNoRows
}

func (r *recordingInvitationRepo) List(ctx context.Context, filter models.InvitationFilter) ([]models.Invitation, int, error) {
	return nil, 0, nil
}

func (r *recordingInvitationRepo) UpdateStatus(ctx context.Context, id string, status models.InvitationStatus, acceptedAt *time.Time) error {
	return nil
}

// stubGateRepo already satisfies the user-side dependency: FindByEmail
// reports no existing account, and Create is the only extra method the
// invitation flow needs.
type stubInvitationUsers struct {
	stubGateRepo
}

func (s *stubInvitationUsers) Create(ctx context.Context, user *models.User) error { return nil }

func newInvitationRouter(t *testing.T, gate *stubGateRepo) (*gin.Engine, *recordingInvitationRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := service.NewAuthService(gate, nil, zap.NewNop(), service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: time.Hour,
	})
	repo := &recordingInvitationRepo{}
	users := &stubInvitationUsers{stubGateRepo: *gate}
	svc := service.NewInvitationService(repo, users, nil, nil, nil, zap.NewNop(), config.InvitationsConfig{
		BaseURL: "https://plancheck.example.com/accept",
	})
	h := NewInvitationHandler(auth, svc)

	r := gin.New()
	r.POST("/invitations", h.Create)
	return r, repo
}

func invitationBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(models.CreateInvitationRequest{
		Email: "New.Reviewer@Example.com",
		Role:  models.RoleAR1Planning,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestInvitationEndpointAdminCreates(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"admin-1": models.RoleAdmin}}
	router, repo := newInvitationRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/invitations", invitationBody(t))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "admin-1", models.RoleAdmin))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.Invitation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "new.reviewer@example.com", envelope.Data.Email)
	assert.Equal(t, models.RoleAR1Planning, envelope.Data.Role)
	assert.Equal(t, models.InvitationPending, envelope.Data.Status)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "admin-1", repo.created[0].InvitedBy)
}

func TestInvitationEndpointNonAdminForbidden(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"pm-1": models.RolePM}}
	router, repo := newInvitationRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/invitations", invitationBody(t))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "pm-1", models.RolePM))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, repo.created)
}
