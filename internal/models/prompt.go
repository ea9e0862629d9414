package models

import "time"

// PromptConfig stores a reusable AI prompt definition keyed by a short
// identifier (e.g. "zoning_review", "setback_check").
type PromptConfig struct {
	ID              string    `db:"id" json:"id"`
	Key             string    `db:"key" json:"key"`
	Title           string    `db:"title" json:"title"`
	SystemPrompt    string    `db:"system_prompt" json:"system_prompt"`
	Model           string    `db:"model" json:"model"`
	Temperature     float64   `db:"temperature" json:"temperature"`
	MaxOutputTokens int       `db:"max_output_tokens" json:"max_output_tokens"`
	Active          bool      `db:"active" json:"active"`
	UpdatedBy       string    `db:"updated_by" json:"updated_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// UpsertPromptRequest creates or replaces a prompt configuration.
type UpsertPromptRequest struct {
	Key             string  `json:"key" validate:"required,min=2,max=64"`
	Title           string  `json:"title" validate:"required,max=200"`
	SystemPrompt    string  `json:"system_prompt" validate:"required"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens int     `json:"max_output_tokens" validate:"gte=0,lte=65536"`
	Active          bool    `json:"active"`
}

// ReviewRequest asks for an AI compliance review of a project
// description against the ordinance table for a jurisdiction and zone.
type ReviewRequest struct {
	PromptKey          string `json:"prompt_key" validate:"required"`
	Jurisdiction       string `json:"jurisdiction" validate:"required"`
	Zone               string `json:"zone" validate:"required"`
	ProjectDescription string `json:"project_description" validate:"required,min=10"`
}

// ReviewResult is the model output of a compliance review run.
type ReviewResult struct {
	PromptKey      string    `json:"prompt_key"`
	Model          string    `json:"model"`
	Jurisdiction   string    `json:"jurisdiction"`
	Zone           string    `json:"zone"`
	OrdinanceCount int       `json:"ordinance_count"`
	Findings       string    `json:"findings"`
	GeneratedAt    time.Time `json:"generated_at"`
}
