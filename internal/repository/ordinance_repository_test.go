package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plancheck/compliance-api/internal/models"
)

func TestOrdinanceRepositoryBulkInsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	mock.ExpectExec("INSERT INTO ordinances").
		WillReturnResult(sqlmock.NewResult(0, 2))

	records := []models.Ordinance{
		{Jurisdiction: "Springfield", Zone: "R-1", ImportedBy: "admin-1"},
		{Jurisdiction: "Shelbyville", Zone: "C-2", ImportedBy: "admin-1"},
	}
	require.NoError(t, repo.BulkInsert(context.Background(), records))
	assert.NotEmpty(t, records[0].ID)
	assert.NotEmpty(t, records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrdinanceRepositoryBulkInsertEmptyBatch(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	require.NoError(t, repo.BulkInsert(context.Background(), nil))
}

func TestOrdinanceRepositoryBulkInsertFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	mock.ExpectExec("INSERT INTO ordinances").
		WillReturnError(errors.New("duplicate key value"))

	err := repo.BulkInsert(context.Background(), []models.Ordinance{{Jurisdiction: "Springfield", Zone: "R-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk insert ordinances")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrdinanceRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	mock.ExpectQuery("SELECT id, jurisdiction, zone, .* FROM ordinances WHERE id = .* LIMIT 1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrdinanceRepositoryListFiltersByJurisdictionAndZone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	now := time.Now().UTC()
	columns := []string{"id", "jurisdiction", "zone", "category", "section_code", "title", "summary", "requirement", "source_url", "imported_by", "created_at", "updated_at"}

	mock.ExpectQuery("SELECT .* FROM ordinances WHERE 1=1 AND jurisdiction = .* AND zone = .* ORDER BY created_at DESC LIMIT 50 OFFSET 0").
		WithArgs("Springfield", "R-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("ord-1", "Springfield", "R-1", "zoning", "12.3", "Setbacks", "", "", "", "admin-1", now, now))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ordinances WHERE 1=1 AND jurisdiction = .* AND zone = .*").
		WithArgs("Springfield", "R-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ordinances, total, err := repo.List(context.Background(), models.OrdinanceFilter{Jurisdiction: "Springfield", Zone: "R-1"})
	require.NoError(t, err)
	require.Len(t, ordinances, 1)
	assert.Equal(t, "ord-1", ordinances[0].ID)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrdinanceRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewOrdinanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ordinances WHERE id = $1")).
		WithArgs("ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "ord-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
