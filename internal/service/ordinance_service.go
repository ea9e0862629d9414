package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/pkg/config"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
	"github.com/plancheck/compliance-api/pkg/export"
)

type ordinanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Ordinance, error)
	List(ctx context.Context, filter models.OrdinanceFilter) ([]models.Ordinance, int, error)
	Update(ctx context.Context, ord *models.Ordinance) error
	Delete(ctx context.Context, id string) error
}

type ordinanceAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// cacheVersionKey is bumped on every write so that stale list entries
// simply stop being addressed instead of being scanned and deleted.
const cacheVersionKey = "ordinances:list:version"

const exportRowLimit = 2000

type cachedOrdinanceList struct {
	Items []models.Ordinance `json:"items"`
	Total int                `json:"total"`
}

// OrdinanceService reads and maintains the ordinance table. List
// results are cached in Redis; the cache client is optional and a nil
// client degrades to direct database reads.
type OrdinanceService struct {
	repo      ordinanceRepository
	audit     ordinanceAuditWriter
	cache     *redis.Client
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	config    config.OrdinancesConfig
}

// NewOrdinanceService constructs an OrdinanceService instance.
func NewOrdinanceService(repo ordinanceRepository, audit ordinanceAuditWriter, cache *redis.Client, validate *validator.Validate, logger *zap.Logger, cfg config.OrdinancesConfig) *OrdinanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &OrdinanceService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// List returns ordinances matching the filter, served from cache when a
// fresh entry exists.
func (s *OrdinanceService) List(ctx context.Context, filter models.OrdinanceFilter) ([]models.Ordinance, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	cacheKey := s.listCacheKey(ctx, filter)
	if cacheKey != "" {
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var cached cachedOrdinanceList
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached.Items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: cached.Total}, nil
			}
		}
	}

	ordinances, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ordinances")
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(cachedOrdinanceList{Items: ordinances, Total: total}); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.config.CacheTTL).Err(); err != nil {
				s.logger.Debug("ordinance list cache write failed", zap.Error(err))
			}
		}
	}

	return ordinances, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one ordinance by identifier.
func (s *OrdinanceService) Get(ctx context.Context, id string) (*models.Ordinance, error) {
	ord, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ordinance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ordinance")
	}
	return ord, nil
}

// Update replaces the mutable fields of an ordinance.
func (s *OrdinanceService) Update(ctx context.Context, caller *models.CallerIdentity, id string, req models.UpdateOrdinanceRequest) (*models.Ordinance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ordinance update")
	}

	ord, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous, _ := json.Marshal(ord)

	ord.Jurisdiction = req.Jurisdiction
	ord.Zone = req.Zone
	ord.Category = req.Category
	ord.SectionCode = req.SectionCode
	ord.Title = req.Title
	ord.Summary = req.Summary
	ord.Requirement = req.Requirement
	ord.SourceURL = req.SourceURL

	if err := s.repo.Update(ctx, ord); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ordinance")
	}

	s.InvalidateListCache(ctx)
	s.recordAudit(ctx, caller, models.AuditActionOrdinanceUpdate, ord.ID, previous, ord)

	return ord, nil
}

// Delete removes an ordinance row.
func (s *OrdinanceService) Delete(ctx context.Context, caller *models.CallerIdentity, id string) error {
	ord, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, ord.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete ordinance")
	}

	s.InvalidateListCache(ctx)
	previous, _ := json.Marshal(ord)
	s.recordAudit(ctx, caller, models.AuditActionOrdinanceDelete, ord.ID, previous, nil)

	return nil
}

// Export renders the filtered ordinance set as CSV or PDF bytes and
// returns the content type and a suggested filename alongside them.
func (s *OrdinanceService) Export(ctx context.Context, filter models.OrdinanceFilter, format string) ([]byte, string, string, error) {
	rows, err := s.collectForExport(ctx, filter)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{
		Headers: []string{"jurisdiction", "zone", "category", "section_code", "title", "summary", "requirement", "source_url"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, ord := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"jurisdiction": ord.Jurisdiction,
			"zone":         ord.Zone,
			"category":     ord.Category,
			"section_code": ord.SectionCode,
			"title":        ord.Title,
			"summary":      ord.Summary,
			"requirement":  ord.Requirement,
			"source_url":   ord.SourceURL,
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return data, "text/csv", fmt.Sprintf("ordinances_%s.csv", stamp), nil
	case "pdf":
		data, err := s.pdf.Render(dataset, "Ordinance Export")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return data, "application/pdf", fmt.Sprintf("ordinances_%s.pdf", stamp), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q, expected csv or pdf", format))
	}
}

// InvalidateListCache retires every cached list entry by bumping the
// version key. Called after imports and every ordinance mutation.
func (s *OrdinanceService) InvalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, cacheVersionKey).Err(); err != nil {
		s.logger.Debug("ordinance cache invalidation failed", zap.Error(err))
	}
}

func (s *OrdinanceService) collectForExport(ctx context.Context, filter models.OrdinanceFilter) ([]models.Ordinance, error) {
	filter.Page = 1
	filter.PageSize = 200

	var all []models.Ordinance
	for {
		batch, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect ordinances for export")
		}
		all = append(all, batch...)
		if len(batch) < filter.PageSize || len(all) >= exportRowLimit {
			break
		}
		filter.Page++
	}
	if len(all) > exportRowLimit {
		all = all[:exportRowLimit]
	}
	return all, nil
}

func (s *OrdinanceService) listCacheKey(ctx context.Context, filter models.OrdinanceFilter) string {
	if s.cache == nil {
		return ""
	}
	version, err := s.cache.Get(ctx, cacheVersionKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return ""
		}
		version = "0"
	}

	raw, err := json.Marshal(filter)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return "ordinances:list:" + version + ":" + hex.EncodeToString(sum[:8])
}

func (s *OrdinanceService) recordAudit(ctx context.Context, caller *models.CallerIdentity, action, resourceID string, oldValues []byte, updated *models.Ordinance) {
	if s.audit == nil {
		return
	}
	var newValues []byte
	if updated != nil {
		newValues, _ = json.Marshal(updated)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &caller.ID,
		Action:     action,
		Resource:   "ordinances",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record ordinance audit log", zap.Error(err))
	}
}
