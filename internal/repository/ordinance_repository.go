package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/plancheck/compliance-api/internal/models"
)

// OrdinanceRepository provides database access for the ordinance table.
type OrdinanceRepository struct {
	db *sqlx.DB
}

// NewOrdinanceRepository creates a new instance of OrdinanceRepository.
func NewOrdinanceRepository(db *sqlx.DB) *OrdinanceRepository {
	return &OrdinanceRepository{db: db}
}

// BulkInsert persists one ingestion batch in a single multi-row INSERT.
// The whole batch succeeds or fails together; the ingestion pipeline
// attributes a failed write to every record in the batch.
func (r *OrdinanceRepository) BulkInsert(ctx context.Context, records []models.Ordinance) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		records[i].UpdatedAt = now
	}

	const query = `INSERT INTO ordinances (id, jurisdiction, zone, category, section_code, title, summary, requirement, source_url, imported_by, created_at, updated_at) VALUES (:id, :jurisdiction, :zone, :category, :section_code, :title, :summary, :requirement, :source_url, :imported_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, records); err != nil {
		return fmt.Errorf("bulk insert ordinances: %w", err)
	}
	return nil
}

// FindByID returns an ordinance by identifier.
func (r *OrdinanceRepository) FindByID(ctx context.Context, id string) (*models.Ordinance, error) {
	const query = `SELECT id, jurisdiction, zone, category, section_code, title, summary, requirement, source_url, imported_by, created_at, updated_at FROM ordinances WHERE id = $1 LIMIT 1`
	var ord models.Ordinance
	if err := r.db.GetContext(ctx, &ord, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find ordinance by id: %w", err)
	}
	return &ord, nil
}

// List returns ordinances based on filters with total count.
func (r *OrdinanceRepository) List(ctx context.Context, filter models.OrdinanceFilter) ([]models.Ordinance, int, error) {
	baseQuery := `FROM ordinances WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Jurisdiction != "" {
		conditions = append(conditions, fmt.Sprintf("jurisdiction = $%d", len(args)+1))
		args = append(args, filter.Jurisdiction)
	}
	if filter.Zone != "" {
		conditions = append(conditions, fmt.Sprintf("zone = $%d", len(args)+1))
		args = append(args, filter.Zone)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(summary) LIKE $%d OR LOWER(requirement) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"jurisdiction": true,
		"zone":         true,
		"section_code": true,
		"created_at":   true,
		"updated_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, jurisdiction, zone, category, section_code, title, summary, requirement, source_url, imported_by, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var ordinances []models.Ordinance
	if err := r.db.SelectContext(ctx, &ordinances, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list ordinances: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ordinances: %w", err)
	}

	return ordinances, total, nil
}

// Update updates mutable fields of an ordinance.
func (r *OrdinanceRepository) Update(ctx context.Context, ord *models.Ordinance) error {
	ord.UpdatedAt = time.Now().UTC()
	const query = `UPDATE ordinances SET jurisdiction = :jurisdiction, zone = :zone, category = :category, section_code = :section_code, title = :title, summary = :summary, requirement = :requirement, source_url = :source_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, ord); err != nil {
		return fmt.Errorf("update ordinance: %w", err)
	}
	return nil
}

// Delete removes an ordinance row.
func (r *OrdinanceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM ordinances WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete ordinance: %w", err)
	}
	return nil
}
