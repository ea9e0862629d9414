package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type ordinanceBulkWriter interface {
	BulkInsert(ctx context.Context, records []models.Ordinance) error
}

type ingestAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// IngestConfig tunes pipeline behaviour.
type IngestConfig struct {
	BatchSize int
	MaxErrors int
}

// IngestService maps tabular ordinance data onto the ordinance table.
// Rows are processed in sequential batches; a batch's bulk write
// completes before the next batch begins so that error attribution and
// persisted row order stay deterministic.
type IngestService struct {
	repo   ordinanceBulkWriter
	audit  ingestAuditWriter
	logger *zap.Logger
	config IngestConfig
}

// NewIngestService constructs an IngestService instance.
func NewIngestService(repo ordinanceBulkWriter, audit ingestAuditWriter, logger *zap.Logger, config IngestConfig) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = 10
	}
	return &IngestService{repo: repo, audit: audit, logger: logger, config: config}
}

// Import runs one ingestion pass over the supplied tabular input.
// The caller must already have cleared the authorization gate; its
// identity is stamped onto every persisted record.
func (s *IngestService) Import(ctx context.Context, caller *models.CallerIdentity, req models.IngestRequest) (*models.IngestReport, error) {
	if caller == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller identity required")
	}
	if len(req.CSVData.Headers) == 0 || len(req.CSVData.Rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csvData with headers and rows is required")
	}
	if len(req.ColumnMappings) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "columnMappings is required")
	}

	// Destination lookup is keyed by CSV column name, so the order of
	// the mapping list never influences the outcome. Mappings naming a
	// column absent from the header row are silently ignored.
	destByCSVColumn := make(map[string]string, len(req.ColumnMappings))
	for _, m := range req.ColumnMappings {
		if m.CSVColumn == "" || m.DBColumn == "" {
			continue
		}
		destByCSVColumn[m.CSVColumn] = m.DBColumn
	}

	destByPosition := make(map[int]string, len(req.CSVData.Headers))
	for i, header := range req.CSVData.Headers {
		if dest, ok := destByCSVColumn[header]; ok {
			destByPosition[i] = dest
		}
	}

	report := &models.IngestReport{
		Errors:         []string{},
		TotalProcessed: len(req.CSVData.Rows),
	}
	var allErrors []string

	rows := req.CSVData.Rows
	for batchStart := 0; batchStart < len(rows); batchStart += s.config.BatchSize {
		batchEnd := batchStart + s.config.BatchSize
		if batchEnd > len(rows) {
			batchEnd = len(rows)
		}

		batch := make([]models.Ordinance, 0, batchEnd-batchStart)
		for offset, row := range rows[batchStart:batchEnd] {
			record := models.Ordinance{ImportedBy: caller.ID}
			for pos, cell := range row {
				dest, ok := destByPosition[pos]
				if !ok {
					continue
				}
				value := strings.TrimSpace(cell)
				if value == "" {
					continue
				}
				setOrdinanceField(&record, dest, value)
			}

			// Spreadsheet-style row number: 1-indexed data row plus the
			// header row plus one, so the message matches what the user
			// sees in their editor.
			rowNumber := batchStart + (offset + 1) + 2
			if record.Jurisdiction == "" || record.Zone == "" {
				report.ErrorCount++
				allErrors = append(allErrors, fmt.Sprintf("Row %d: missing required field (jurisdiction and zone must be non-empty)", rowNumber))
				continue
			}

			batch = append(batch, record)
		}

		if len(batch) == 0 {
			continue
		}

		if err := s.repo.BulkInsert(ctx, batch); err != nil {
			// A failed bulk write takes the whole batch down; there is
			// no per-row recovery and no retry. Later batches still run.
			s.logger.Warn("ordinance batch insert failed",
				zap.Int("batch_start", batchStart),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			report.ErrorCount += len(batch)
			allErrors = append(allErrors, fmt.Sprintf("Rows %d-%d: batch insert failed: %v", batchStart+3, batchEnd+2, err))
			continue
		}

		report.SuccessCount += len(batch)
	}

	if len(allErrors) > s.config.MaxErrors {
		report.Errors = allErrors[:s.config.MaxErrors]
	} else {
		report.Errors = allErrors
	}

	s.recordAudit(ctx, caller, report)

	return report, nil
}

// ImportFile parses an uploaded .csv or .xlsx document into tabular
// input and feeds it through the same pipeline as the JSON endpoint.
func (s *IngestService) ImportFile(ctx context.Context, caller *models.CallerIdentity, fileName string, data io.Reader, mappings []models.ColumnMapping) (*models.IngestReport, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}

	var input models.TabularInput
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		input, err = parseCSV(payload)
	case ".xlsx":
		input, err = parseXLSX(payload)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file format %q, expected .csv or .xlsx", filepath.Ext(fileName)))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to parse upload")
	}

	return s.Import(ctx, caller, models.IngestRequest{CSVData: input, ColumnMappings: mappings})
}

func (s *IngestService) recordAudit(ctx context.Context, caller *models.CallerIdentity, report *models.IngestReport) {
	if s.audit == nil {
		return
	}
	summary, _ := json.Marshal(report)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &caller.ID,
		Action:    models.AuditActionOrdinanceImport,
		Resource:  "ordinances",
		NewValues: summary,
	}); err != nil {
		s.logger.Warn("failed to record ingestion audit log", zap.Error(err))
	}
}

func setOrdinanceField(record *models.Ordinance, column, value string) {
	switch column {
	case "jurisdiction":
		record.Jurisdiction = value
	case "zone":
		record.Zone = value
	case "category":
		record.Category = value
	case "section_code":
		record.SectionCode = value
	case "title":
		record.Title = value
	case "summary":
		record.Summary = value
	case "requirement":
		record.Requirement = value
	case "source_url":
		record.SourceURL = value
	}
}

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(payload []byte) (models.TabularInput, error) {
	payload = bytes.TrimPrefix(payload, byteOrderMark)
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return models.TabularInput{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return models.TabularInput{}, fmt.Errorf("csv file is empty")
	}

	return models.TabularInput{Headers: records[0], Rows: records[1:]}, nil
}

func parseXLSX(payload []byte) (models.TabularInput, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return models.TabularInput{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.TabularInput{}, fmt.Errorf("xlsx file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return models.TabularInput{}, fmt.Errorf("read xlsx rows: %w", err)
	}
	if len(rows) == 0 {
		return models.TabularInput{}, fmt.Errorf("xlsx sheet is empty")
	}

	return models.TabularInput{Headers: rows[0], Rows: rows[1:]}, nil
}
