package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type mockPromptRepo struct {
	byKey    map[string]*models.PromptConfig
	upserted []*models.PromptConfig
	deleted  []string
}

func newMockPromptRepo() *mockPromptRepo {
	return &mockPromptRepo{byKey: map[string]*models.PromptConfig{}}
}

func (m *mockPromptRepo) List(ctx context.Context) ([]models.PromptConfig, error) {
	var out []models.PromptConfig
	for _, p := range m.byKey {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockPromptRepo) FindByKey(ctx context.Context, key string) (*models.PromptConfig, error) {
	if p, ok := m.byKey[key]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPromptRepo) Upsert(ctx context.Context, prompt *models.PromptConfig) error {
	m.upserted = append(m.upserted, prompt)
	m.byKey[prompt.Key] = prompt
	return nil
}

func (m *mockPromptRepo) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.byKey, key)
	return nil
}

func TestPromptUpsertStampsCaller(t *testing.T) {
	repo := newMockPromptRepo()
	svc := NewPromptService(repo, &mockAuditWriter{}, nil, zap.NewNop())

	prompt, err := svc.Upsert(context.Background(), testCaller, models.UpsertPromptRequest{
		Key:          "zoning_review",
		Title:        "Zoning review",
		SystemPrompt: "You are a building-code reviewer.",
		Temperature:  0.2,
		Active:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, testCaller.ID, prompt.UpdatedBy)
	assert.True(t, prompt.Active)
	require.Len(t, repo.upserted, 1)
}

func TestPromptUpsertValidation(t *testing.T) {
	svc := NewPromptService(newMockPromptRepo(), &mockAuditWriter{}, nil, zap.NewNop())

	_, err := svc.Upsert(context.Background(), testCaller, models.UpsertPromptRequest{Key: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPromptGetNotFound(t *testing.T) {
	svc := NewPromptService(newMockPromptRepo(), &mockAuditWriter{}, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPromptDeleteUnknownKey(t *testing.T) {
	repo := newMockPromptRepo()
	svc := NewPromptService(repo, &mockAuditWriter{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), testCaller, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}
