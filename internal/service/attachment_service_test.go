package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/storage"
)

type mockAttachmentRepo struct {
	byID      map[string]*models.Attachment
	created   []*models.Attachment
	deleted   []string
	createErr error
}

func newMockAttachmentRepo() *mockAttachmentRepo {
	return &mockAttachmentRepo{byID: map[string]*models.Attachment{}}
}

func (m *mockAttachmentRepo) Create(ctx context.Context, att *models.Attachment) error {
	if m.createErr != nil {
		return m.createErr
	}
	att.ID = "att-created"
	m.created = append(m.created, att)
	m.byID[att.ID] = att
	return nil
}

func (m *mockAttachmentRepo) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	if att, ok := m.byID[id]; ok {
		return att, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttachmentRepo) ListByProject(ctx context.Context, projectID string) ([]models.Attachment, error) {
	var out []models.Attachment
	for _, att := range m.byID {
		if att.ProjectID == projectID {
			out = append(out, *att)
		}
	}
	return out, nil
}

func (m *mockAttachmentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.byID, id)
	return nil
}

func newAttachmentService(t *testing.T, repo *mockAttachmentRepo, cfg config.AttachmentsConfig) *AttachmentService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-signing-secret", 10*time.Minute)
	return NewAttachmentService(repo, &mockAuditWriter{}, store, signer, zap.NewNop(), cfg)
}

func TestAttachmentUploadAndResolve(t *testing.T) {
	repo := newMockAttachmentRepo()
	svc := newAttachmentService(t, repo, config.AttachmentsConfig{})

	att, err := svc.Upload(context.Background(), testCaller, "proj-1", "plans.pdf", "application/pdf", 9, strings.NewReader("plan data"))
	require.NoError(t, err)
	assert.Equal(t, "proj-1", att.ProjectID)
	assert.Equal(t, "plans.pdf", att.FileName)
	assert.Equal(t, int64(9), att.SizeBytes)
	assert.Equal(t, testCaller.ID, att.UploadedBy)
	assert.True(t, strings.HasSuffix(att.StoragePath, ".pdf"))

	link, err := svc.SignedDownload(context.Background(), att.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "/attachments/download?token=")

	token := strings.TrimPrefix(link.URL, "/attachments/download?token=")
	resolved, file, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	assert.Equal(t, att.ID, resolved.ID)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "plan data", string(data))
}

func TestAttachmentUploadDeclaredSizeTooLarge(t *testing.T) {
	svc := newAttachmentService(t, newMockAttachmentRepo(), config.AttachmentsConfig{MaxFileSizeBytes: 10})

	_, err := svc.Upload(context.Background(), testCaller, "proj-1", "big.pdf", "application/pdf", 11, strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, appErrors.FromError(err).Code)
}

func TestAttachmentUploadActualSizeTooLarge(t *testing.T) {
	svc := newAttachmentService(t, newMockAttachmentRepo(), config.AttachmentsConfig{MaxFileSizeBytes: 10})

	// Declared size fits, the stream does not.
	_, err := svc.Upload(context.Background(), testCaller, "proj-1", "big.pdf", "application/pdf", 5, strings.NewReader(strings.Repeat("x", 24)))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, appErrors.FromError(err).Code)
}

func TestAttachmentUploadDisallowedMIME(t *testing.T) {
	svc := newAttachmentService(t, newMockAttachmentRepo(), config.AttachmentsConfig{
		AllowedMIMEs: []string{"application/pdf", "image/png"},
	})

	_, err := svc.Upload(context.Background(), testCaller, "proj-1", "script.sh", "text/x-shellscript", 4, strings.NewReader("data"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttachmentUploadMIMECheckCaseInsensitive(t *testing.T) {
	svc := newAttachmentService(t, newMockAttachmentRepo(), config.AttachmentsConfig{
		AllowedMIMEs: []string{"application/pdf"},
	})

	_, err := svc.Upload(context.Background(), testCaller, "proj-1", "plans.pdf", "Application/PDF", 4, strings.NewReader("data"))
	require.NoError(t, err)
}

func TestAttachmentResolveRejectsTamperedToken(t *testing.T) {
	repo := newMockAttachmentRepo()
	svc := newAttachmentService(t, repo, config.AttachmentsConfig{})

	att, err := svc.Upload(context.Background(), testCaller, "proj-1", "plans.pdf", "application/pdf", 4, strings.NewReader("data"))
	require.NoError(t, err)

	link, err := svc.SignedDownload(context.Background(), att.ID)
	require.NoError(t, err)
	token := strings.TrimPrefix(link.URL, "/attachments/download?token=")

	_, _, err = svc.Resolve(context.Background(), token+"0")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAttachmentDeleteRemovesRowAndFile(t *testing.T) {
	repo := newMockAttachmentRepo()
	svc := newAttachmentService(t, repo, config.AttachmentsConfig{})

	att, err := svc.Upload(context.Background(), testCaller, "proj-1", "plans.pdf", "application/pdf", 4, strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), testCaller, att.ID))
	assert.Equal(t, []string{att.ID}, repo.deleted)

	err = svc.Delete(context.Background(), testCaller, att.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
