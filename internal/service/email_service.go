package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type emailQueueRepository interface {
	Enqueue(ctx context.Context, email *models.QueuedEmail) error
	FindDeliverable(ctx context.Context, maxAttempts, limit int) ([]models.QueuedEmail, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// EmailService queues outbound emails and forwards them to the delivery
// provider. The dispatcher itself never retries a failed send; failed
// entries stay non-terminal and are picked up by the next
// reconciliation pass until the attempt ceiling is reached.
type EmailService struct {
	repo       emailQueueRepository
	httpClient *http.Client
	logger     *zap.Logger
	config     config.EmailConfig
}

// NewEmailService constructs an EmailService instance.
func NewEmailService(repo emailQueueRepository, httpClient *http.Client, logger *zap.Logger, cfg config.EmailConfig) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &EmailService{repo: repo, httpClient: httpClient, logger: logger, config: cfg}
}

// Enqueue persists a new pending email for later delivery.
func (s *EmailService) Enqueue(ctx context.Context, email *models.QueuedEmail) error {
	if email.Recipient == "" || email.Subject == "" {
		return appErrors.Clone(appErrors.ErrValidation, "recipient and subject are required")
	}
	if err := s.repo.Enqueue(ctx, email); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue email")
	}
	return nil
}

// ProcessQueue delivers one batch of non-terminal queue entries
// sequentially and reports how many were attempted. Called by the
// reconciliation ticker and by the manual admin trigger.
func (s *EmailService) ProcessQueue(ctx context.Context) (int, error) {
	emails, err := s.repo.FindDeliverable(ctx, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load email queue")
	}

	for i := range emails {
		s.Dispatch(ctx, &emails[i])
	}

	return len(emails), nil
}

// Dispatch sends one queued email and records the outcome. Delivery
// failures are recorded on the queue entry, never returned as errors.
func (s *EmailService) Dispatch(ctx context.Context, email *models.QueuedEmail) {
	// Simulate mode: without a provider credential the email is logged
	// and marked sent so local environments work without secrets.
	if s.config.APIKey == "" {
		s.logger.Info("email dispatch simulated (no provider API key)",
			zap.String("email_id", email.ID),
			zap.String("recipient", email.Recipient),
			zap.String("subject", email.Subject))
		if err := s.repo.MarkSent(ctx, email.ID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to mark simulated email sent", zap.Error(err))
		}
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"from":    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		"to":      []string{email.Recipient},
		"subject": email.Subject,
		"html":    email.BodyHTML,
	})
	if err != nil {
		s.markFailed(ctx, email, fmt.Sprintf("encode payload: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		s.markFailed(ctx, email, fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.markFailed(ctx, email, fmt.Sprintf("provider request failed: %v", err))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.markFailed(ctx, email, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, string(body)))
		return
	}

	if err := s.repo.MarkSent(ctx, email.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to mark email sent", zap.String("email_id", email.ID), zap.Error(err))
		return
	}
	s.logger.Info("email delivered", zap.String("email_id", email.ID), zap.String("recipient", email.Recipient))
}

// StartReconciler runs ProcessQueue on a fixed interval until the
// context is cancelled.
func (s *EmailService) StartReconciler(ctx context.Context) {
	interval := s.config.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.ProcessQueue(ctx); err != nil {
					s.logger.Warn("email reconciliation pass failed", zap.Error(err))
				} else if n > 0 {
					s.logger.Info("email reconciliation pass complete", zap.Int("processed", n))
				}
			}
		}
	}()
}

func (s *EmailService) markFailed(ctx context.Context, email *models.QueuedEmail, reason string) {
	s.logger.Warn("email delivery failed",
		zap.String("email_id", email.ID),
		zap.String("recipient", email.Recipient),
		zap.String("reason", reason))
	if err := s.repo.MarkFailed(ctx, email.ID, reason); err != nil {
		s.logger.Warn("failed to mark email failed", zap.String("email_id", email.ID), zap.Error(err))
	}
}
