package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plancheck/compliance-api/internal/models"
)

// PromptRepository provides database access for AI prompt configurations.
type PromptRepository struct {
	db *sqlx.DB
}

// NewPromptRepository creates a new instance of PromptRepository.
func NewPromptRepository(db *sqlx.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// List returns all prompt configurations ordered by key.
func (r *PromptRepository) List(ctx context.Context) ([]models.PromptConfig, error) {
	const query = `SELECT id, key, title, system_prompt, model, temperature, max_output_tokens, active, updated_by, created_at, updated_at FROM prompt_configs ORDER BY key ASC`
	var prompts []models.PromptConfig
	if err := r.db.SelectContext(ctx, &prompts, query); err != nil {
		return nil, fmt.Errorf("list prompt configs: %w", err)
	}
	return prompts, nil
}

// FindByKey returns a prompt configuration by its key.
func (r *PromptRepository) FindByKey(ctx context.Context, key string) (*models.PromptConfig, error) {
	const query = `SELECT id, key, title, system_prompt, model, temperature, max_output_tokens, active, updated_by, created_at, updated_at FROM prompt_configs WHERE key = $1 LIMIT 1`
	var prompt models.PromptConfig
	if err := r.db.GetContext(ctx, &prompt, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find prompt config: %w", err)
	}
	return &prompt, nil
}

// Upsert creates or replaces the prompt configuration for a key.
func (r *PromptRepository) Upsert(ctx context.Context, prompt *models.PromptConfig) error {
	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = now
	}
	prompt.UpdatedAt = now
	const query = `INSERT INTO prompt_configs (id, key, title, system_prompt, model, temperature, max_output_tokens, active, updated_by, created_at, updated_at)
		VALUES (:id, :key, :title, :system_prompt, :model, :temperature, :max_output_tokens, :active, :updated_by, :created_at, :updated_at)
		ON CONFLICT (key) DO UPDATE SET title = EXCLUDED.title, system_prompt = EXCLUDED.system_prompt, model = EXCLUDED.model, temperature = EXCLUDED.temperature, max_output_tokens = EXCLUDED.max_output_tokens, active = EXCLUDED.active, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, prompt); err != nil {
		return fmt.Errorf("upsert prompt config: %w", err)
	}
	return nil
}

// Delete removes a prompt configuration by key.
func (r *PromptRepository) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM prompt_configs WHERE key = $1`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete prompt config: %w", err)
	}
	return nil
}
