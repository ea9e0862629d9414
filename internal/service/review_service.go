package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type reviewPromptReader interface {
	FindByKey(ctx context.Context, key string) (*models.PromptConfig, error)
}

type reviewOrdinanceReader interface {
	List(ctx context.Context, filter models.OrdinanceFilter) ([]models.Ordinance, int, error)
}

type reviewAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// reviewOrdinanceLimit caps how many ordinance rows are packed into a
// single model prompt.
const reviewOrdinanceLimit = 200

// ReviewService runs AI compliance reviews: it assembles the ordinance
// context for a jurisdiction and zone, applies the stored prompt
// configuration and calls the Gemini API.
type ReviewService struct {
	prompts    reviewPromptReader
	ordinances reviewOrdinanceReader
	audit      reviewAuditWriter
	validator  *validator.Validate
	logger     *zap.Logger
	config     config.ReviewConfig
}

// NewReviewService constructs a ReviewService instance.
func NewReviewService(prompts reviewPromptReader, ordinances reviewOrdinanceReader, audit reviewAuditWriter, validate *validator.Validate, logger *zap.Logger, cfg config.ReviewConfig) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ReviewService{prompts: prompts, ordinances: ordinances, audit: audit, validator: validate, logger: logger, config: cfg}
}

// Run executes one compliance review.
func (s *ReviewService) Run(ctx context.Context, caller *models.CallerIdentity, req models.ReviewRequest) (*models.ReviewResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review request")
	}
	if !s.config.Enabled || s.config.APIKey == "" {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "AI review is not enabled on this deployment")
	}

	prompt, err := s.prompts.FindByKey(ctx, req.PromptKey)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("prompt config %q not found", req.PromptKey))
	}
	if !prompt.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("prompt config %q is inactive", req.PromptKey))
	}

	ordinances, total, err := s.ordinances.List(ctx, models.OrdinanceFilter{
		Jurisdiction: req.Jurisdiction,
		Zone:         req.Zone,
		Page:         1,
		PageSize:     reviewOrdinanceLimit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ordinances for review")
	}
	if len(ordinances) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no ordinances found for %s / %s", req.Jurisdiction, req.Zone))
	}
	if total > len(ordinances) {
		s.logger.Warn("review context truncated",
			zap.Int("matched", total),
			zap.Int("included", len(ordinances)))
	}

	model := prompt.Model
	if model == "" {
		model = s.config.Model
	}

	findings, err := s.generate(ctx, prompt, model, buildReviewPrompt(req, ordinances))
	if err != nil {
		return nil, err
	}

	result := &models.ReviewResult{
		PromptKey:      prompt.Key,
		Model:          model,
		Jurisdiction:   req.Jurisdiction,
		Zone:           req.Zone,
		OrdinanceCount: len(ordinances),
		Findings:       findings,
		GeneratedAt:    time.Now().UTC(),
	}

	s.recordAudit(ctx, caller, result)
	return result, nil
}

func (s *ReviewService) generate(ctx context.Context, prompt *models.PromptConfig, model, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: s.config.APIKey})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to initialise AI client")
	}

	genConfig := &genai.GenerateContentConfig{}
	if prompt.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(prompt.SystemPrompt, genai.RoleUser)
	}
	if prompt.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(prompt.Temperature))
	}
	if prompt.MaxOutputTokens > 0 {
		genConfig.MaxOutputTokens = int32(prompt.MaxOutputTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	resp, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "AI review request failed")
	}

	findings := resp.Text()
	if findings == "" {
		return "", appErrors.Clone(appErrors.ErrUnavailable, "AI review returned no content")
	}
	return findings, nil
}

func buildReviewPrompt(req models.ReviewRequest, ordinances []models.Ordinance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Jurisdiction: %s\nZone: %s\n\n", req.Jurisdiction, req.Zone)
	b.WriteString("Applicable ordinances:\n")
	for i, ord := range ordinances {
		fmt.Fprintf(&b, "%d. ", i+1)
		if ord.SectionCode != "" {
			fmt.Fprintf(&b, "[%s] ", ord.SectionCode)
		}
		if ord.Title != "" {
			fmt.Fprintf(&b, "%s: ", ord.Title)
		}
		if ord.Requirement != "" {
			b.WriteString(ord.Requirement)
		} else {
			b.WriteString(ord.Summary)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nProject description:\n%s\n", req.ProjectDescription)
	b.WriteString("\nReview the project description against each ordinance above and report compliance findings.")
	return b.String()
}

func (s *ReviewService) recordAudit(ctx context.Context, caller *models.CallerIdentity, result *models.ReviewResult) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"prompt_key":      result.PromptKey,
		"model":           result.Model,
		"jurisdiction":    result.Jurisdiction,
		"zone":            result.Zone,
		"ordinance_count": result.OrdinanceCount,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &caller.ID,
		Action:    models.AuditActionReviewRun,
		Resource:  "reviews",
		NewValues: payload,
	}); err != nil {
		s.logger.Warn("failed to record review audit log", zap.Error(err))
	}
}
