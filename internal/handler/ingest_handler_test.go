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
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	"github.com/plancheck/compliance-api/pkg/config"
)

const testSecret = "handler-test-secret"

type stubGateRepo struct {
	roles map[string]models.UserRole
}

func (s *stubGateRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func (s *stubGateRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func (s *stubGateRepo) FindRole(ctx context.Context, id string) (models.UserRole, error) {
	if role, ok := s.roles[id]; ok {
		return role, nil
	}
	return "", sql.ErrNoRows
}

func (s *stubGateRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }
func (s *stubGateRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error  { return nil }
func (s *stubGateRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return nil
}

func (s *stubGateRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return nil, sql.ErrNoRows
}

func (s *stubGateRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func (s *stubGateRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

type recordingBulkWriter struct {
	batches [][]models.Ordinance
}

func (r *recordingBulkWriter) BulkInsert(ctx context.Context, records []models.Ordinance) error {
	r.batches = append(r.batches, records)
	return nil
}

func signTestToken(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: userID,
		Role:   role,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newIngestRouter(t *testing.T, gate *stubGateRepo) (*gin.Engine, *recordingBulkWriter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := service.NewAuthService(gate, nil, zap.NewNop(), service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: time.Hour,
	})
	writer := &recordingBulkWriter{}
	ingest := service.NewIngestService(writer, nil, zap.NewNop(), service.IngestConfig{})
	h := NewIngestHandler(auth, ingest, nil, nil, config.IngestConfig{})

	r := gin.New()
	r.POST("/ordinances/import", h.Import)
	return r, writer
}

func ingestBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	payload := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone"},
			Rows:    [][]string{{"Springfield", "R-1"}, {"Shelbyville", ""}},
		},
		ColumnMappings: []models.ColumnMapping{
			{CSVColumn: "Jurisdiction", DBColumn: "jurisdiction"},
			{CSVColumn: "Zone", DBColumn: "zone"},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewBuffer(raw)
}

func TestIngestEndpointAdminSucceeds(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"admin-1": models.RoleAdmin}}
	router, writer := newIngestRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/ordinances/import", ingestBody(t))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "admin-1", models.RoleAdmin))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.IngestReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.SuccessCount)
	assert.Equal(t, 1, envelope.Data.ErrorCount)
	assert.Equal(t, 2, envelope.Data.TotalProcessed)
	require.Len(t, writer.batches, 1)
}

func TestIngestEndpointNonAdminForbidden(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"pm-1": models.RolePM}}
	router, writer := newIngestRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/ordinances/import", ingestBody(t))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "pm-1", models.RolePM))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, writer.batches)
}

// A token minted with an admin claim must still be rejected when the
// role in the database has changed since issuance.
func TestIngestEndpointStaleAdminClaimForbidden(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"demoted-1": models.RoleUser}}
	router, writer := newIngestRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/ordinances/import", ingestBody(t))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "demoted-1", models.RoleAdmin))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, writer.batches)
}

func TestIngestEndpointMissingTokenUnauthorized(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{}}
	router, writer := newIngestRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/ordinances/import", ingestBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, writer.batches)
}

func TestIngestEndpointMalformedBody(t *testing.T) {
	gate := &stubGateRepo{roles: map[string]models.UserRole{"admin-1": models.RoleAdmin}}
	router, _ := newIngestRouter(t, gate)

	req := httptest.NewRequest(http.MethodPost, "/ordinances/import", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "admin-1", models.RoleAdmin))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
