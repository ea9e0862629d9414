package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

// TeamsService forwards structured notifications to a Microsoft Teams
// incoming webhook.
type TeamsService struct {
	httpClient *http.Client
	validator  *validator.Validate
	logger     *zap.Logger
	config     config.TeamsConfig
}

// NewTeamsService constructs a TeamsService instance.
func NewTeamsService(httpClient *http.Client, validate *validator.Validate, logger *zap.Logger, cfg config.TeamsConfig) *TeamsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TeamsService{httpClient: httpClient, validator: validate, logger: logger, config: cfg}
}

// Send posts a MessageCard payload to the configured webhook. The
// webhook call is a one-shot delivery; a non-2xx response is surfaced
// to the caller and nothing is retried.
func (s *TeamsService) Send(ctx context.Context, msg models.TeamsMessage) error {
	if err := s.validator.Struct(msg); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teams message")
	}
	if !s.config.Enabled || s.config.WebhookURL == "" {
		return appErrors.Clone(appErrors.ErrUnavailable, "teams notifications are not configured")
	}

	color := msg.Color
	if color == "" {
		color = "0076D7"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    msg.Title,
		"title":      msg.Title,
		"text":       msg.Text,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode teams payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "teams webhook unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return appErrors.Clone(appErrors.ErrUnavailable, fmt.Sprintf("teams webhook returned %d: %s", resp.StatusCode, string(body)))
	}

	s.logger.Info("teams notification delivered", zap.String("title", msg.Title))
	return nil
}
