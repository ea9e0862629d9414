package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type mockBulkWriter struct {
	batches     [][]models.Ordinance
	failBatches map[int]error
}

func (m *mockBulkWriter) BulkInsert(ctx context.Context, records []models.Ordinance) error {
	call := len(m.batches)
	m.batches = append(m.batches, records)
	if err, ok := m.failBatches[call]; ok {
		return err
	}
	return nil
}

type mockAuditWriter struct {
	logs []*models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

var testCaller = &models.CallerIdentity{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}

func defaultMappings() []models.ColumnMapping {
	return []models.ColumnMapping{
		{CSVColumn: "Jurisdiction", DBColumn: "jurisdiction"},
		{CSVColumn: "Zone", DBColumn: "zone"},
		{CSVColumn: "Title", DBColumn: "title"},
	}
}

func newIngest(repo *mockBulkWriter, cfg IngestConfig) *IngestService {
	return NewIngestService(repo, &mockAuditWriter{}, zap.NewNop(), cfg)
}

func TestIngestImportCountsAddUp(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone", "Title"},
			Rows: [][]string{
				{"Springfield", "R-1", "Setbacks"},
				{"Springfield", "", "Broken"},
				{"Shelbyville", "C-2", "Heights"},
			},
		},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 3, report.TotalProcessed)
	assert.Equal(t, report.TotalProcessed, report.SuccessCount+report.ErrorCount)
}

func TestIngestWhitespaceOnlyMandatoryRejected(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone"},
			Rows:    [][]string{{"Springfield", "   "}},
		},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 0, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Row 3: missing required field (jurisdiction and zone must be non-empty)", report.Errors[0])
	assert.Empty(t, repo.batches)
}

func TestIngestRowNumbersCountHeaderRow(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	// Third data row is broken: the header is row 1 and the first
	// data row is row 3, so the third lands on row 5.
	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone"},
			Rows: [][]string{
				{"Springfield", "R-1"},
				{"Springfield", "R-2"},
				{"", "R-3"},
			},
		},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "Row 5:"), report.Errors[0])
}

func TestIngestSecondRowMissingZoneReportedAsRowFour(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone", "Notes"},
			Rows: [][]string{
				{"CityA", "R-1", "ok"},
				{"CityB", "", ""},
			},
		},
		ColumnMappings: []models.ColumnMapping{
			{CSVColumn: "Jurisdiction", DBColumn: "jurisdiction"},
			{CSVColumn: "Zone", DBColumn: "zone"},
		},
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 2, report.TotalProcessed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Row 4: missing required field (jurisdiction and zone must be non-empty)", report.Errors[0])
}

func TestIngestErrorListCappedButCountTrue(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{MaxErrors: 10})

	rows := make([][]string, 15)
	for i := range rows {
		rows[i] = []string{"", "R-1"}
	}
	req := models.IngestRequest{
		CSVData:        models.TabularInput{Headers: []string{"Jurisdiction", "Zone"}, Rows: rows},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 15, report.ErrorCount)
	assert.Len(t, report.Errors, 10)
}

func TestIngestMappingOrderDoesNotMatter(t *testing.T) {
	rows := [][]string{{"Springfield", "R-1", "Setbacks"}}
	headers := []string{"Jurisdiction", "Zone", "Title"}

	forward := defaultMappings()
	reversed := []models.ColumnMapping{forward[2], forward[1], forward[0]}

	var results [][]models.Ordinance
	for _, mappings := range [][]models.ColumnMapping{forward, reversed} {
		repo := &mockBulkWriter{}
		svc := newIngest(repo, IngestConfig{})
		_, err := svc.Import(context.Background(), testCaller, models.IngestRequest{
			CSVData:        models.TabularInput{Headers: headers, Rows: rows},
			ColumnMappings: mappings,
		})
		require.NoError(t, err)
		require.Len(t, repo.batches, 1)
		results = append(results, repo.batches[0])
	}

	require.Len(t, results[0], 1)
	require.Len(t, results[1], 1)
	assert.Equal(t, results[0][0].Jurisdiction, results[1][0].Jurisdiction)
	assert.Equal(t, results[0][0].Zone, results[1][0].Zone)
	assert.Equal(t, results[0][0].Title, results[1][0].Title)
}

func TestIngestUnknownMappingIgnored(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	mappings := append(defaultMappings(), models.ColumnMapping{CSVColumn: "Nonexistent", DBColumn: "category"})
	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone", "Title"},
			Rows:    [][]string{{"Springfield", "R-1", "Setbacks"}},
		},
		ColumnMappings: mappings,
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	require.Len(t, repo.batches, 1)
	assert.Empty(t, repo.batches[0][0].Category)
}

func TestIngestBatchesOfOneHundred(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{BatchSize: 100})

	rows := make([][]string, 101)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("City-%d", i), "R-1"}
	}
	req := models.IngestRequest{
		CSVData:        models.TabularInput{Headers: []string{"Jurisdiction", "Zone"}, Rows: rows},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 101, report.SuccessCount)
	require.Len(t, repo.batches, 2)
	assert.Len(t, repo.batches[0], 100)
	assert.Len(t, repo.batches[1], 1)
}

func TestIngestFailedBatchDoesNotStopLaterBatches(t *testing.T) {
	repo := &mockBulkWriter{failBatches: map[int]error{0: errors.New("unique constraint violation")}}
	svc := newIngest(repo, IngestConfig{BatchSize: 100})

	rows := make([][]string, 101)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("City-%d", i), "R-1"}
	}
	req := models.IngestRequest{
		CSVData:        models.TabularInput{Headers: []string{"Jurisdiction", "Zone"}, Rows: rows},
		ColumnMappings: defaultMappings(),
	}

	report, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 100, report.ErrorCount)
	require.Len(t, repo.batches, 2)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "batch insert failed")
}

func TestIngestStampsImporter(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	req := models.IngestRequest{
		CSVData: models.TabularInput{
			Headers: []string{"Jurisdiction", "Zone"},
			Rows:    [][]string{{"Springfield", "R-1"}},
		},
		ColumnMappings: defaultMappings(),
	}

	_, err := svc.Import(context.Background(), testCaller, req)
	require.NoError(t, err)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, testCaller.ID, repo.batches[0][0].ImportedBy)
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	svc := newIngest(&mockBulkWriter{}, IngestConfig{})

	_, err := svc.Import(context.Background(), testCaller, models.IngestRequest{ColumnMappings: defaultMappings()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Import(context.Background(), testCaller, models.IngestRequest{
		CSVData: models.TabularInput{Headers: []string{"Jurisdiction"}, Rows: [][]string{{"x"}}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIngestImportFileCSVWithBOM(t *testing.T) {
	repo := &mockBulkWriter{}
	svc := newIngest(repo, IngestConfig{})

	payload := "\xEF\xBB\xBFJurisdiction,Zone\nSpringfield,R-1\n"
	report, err := svc.ImportFile(context.Background(), testCaller, "ordinances.csv", strings.NewReader(payload), defaultMappings())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 0, report.ErrorCount)
}

func TestIngestImportFileUnsupportedExtension(t *testing.T) {
	svc := newIngest(&mockBulkWriter{}, IngestConfig{})

	_, err := svc.ImportFile(context.Background(), testCaller, "ordinances.txt", strings.NewReader("x"), defaultMappings())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
