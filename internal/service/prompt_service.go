package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type promptRepository interface {
	List(ctx context.Context) ([]models.PromptConfig, error)
	FindByKey(ctx context.Context, key string) (*models.PromptConfig, error)
	Upsert(ctx context.Context, prompt *models.PromptConfig) error
	Delete(ctx context.Context, key string) error
}

type promptAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PromptService manages the stored AI prompt configurations used by
// compliance reviews.
type PromptService struct {
	repo      promptRepository
	audit     promptAuditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPromptService constructs a PromptService instance.
func NewPromptService(repo promptRepository, audit promptAuditWriter, validate *validator.Validate, logger *zap.Logger) *PromptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PromptService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns all prompt configurations.
func (s *PromptService) List(ctx context.Context) ([]models.PromptConfig, error) {
	prompts, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prompt configs")
	}
	return prompts, nil
}

// Get returns one prompt configuration by key.
func (s *PromptService) Get(ctx context.Context, key string) (*models.PromptConfig, error) {
	prompt, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prompt config not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prompt config")
	}
	return prompt, nil
}

// Upsert creates or replaces the prompt configuration for a key.
func (s *PromptService) Upsert(ctx context.Context, caller *models.CallerIdentity, req models.UpsertPromptRequest) (*models.PromptConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prompt config")
	}

	prompt := &models.PromptConfig{
		Key:             req.Key,
		Title:           req.Title,
		SystemPrompt:    req.SystemPrompt,
		Model:           req.Model,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
		Active:          req.Active,
		UpdatedBy:       caller.ID,
	}
	if err := s.repo.Upsert(ctx, prompt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save prompt config")
	}

	s.recordAudit(ctx, caller, prompt)
	return prompt, nil
}

// Delete removes a prompt configuration by key.
func (s *PromptService) Delete(ctx context.Context, caller *models.CallerIdentity, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete prompt config")
	}
	s.logger.Info("prompt config deleted", zap.String("key", key), zap.String("deleted_by", caller.ID))
	return nil
}

func (s *PromptService) recordAudit(ctx context.Context, caller *models.CallerIdentity, prompt *models.PromptConfig) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(prompt)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &caller.ID,
		Action:     models.AuditActionPromptUpdate,
		Resource:   "prompt_configs",
		ResourceID: &prompt.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record prompt audit log", zap.Error(err))
	}
}
