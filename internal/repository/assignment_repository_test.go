package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classdesk/classdesk-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssignmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "due_date", "max_points", "created_by", "created_by_email", "created_at", "status"}).
		AddRow("a1", "HW1", "intro homework", time.Now().Add(24*time.Hour), 100, "t1", "teacher@example.com", time.Now(), "active")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, due_date, max_points, created_by, created_by_email, created_at, status FROM assignments ORDER BY created_at DESC")).
		WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "HW1", list[0].Title)
	assert.Equal(t, models.AssignmentStatusActive, list[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO assignments").
		WithArgs(sqlmock.AnyArg(), "HW1", "intro homework", sqlmock.AnyArg(), 100, "t1", "teacher@example.com", sqlmock.AnyArg(), "active").
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := &models.Assignment{
		Title:          "HW1",
		Description:    "intro homework",
		DueDate:        time.Now().Add(24 * time.Hour),
		MaxPoints:      100,
		CreatedBy:      "t1",
		CreatedByEmail: "teacher@example.com",
		CreatedAt:      time.Now().UTC(),
		Status:         models.AssignmentStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "due_date", "max_points", "created_by", "created_by_email", "created_at", "status"}).
		AddRow("a1", "HW1", "", time.Now(), 50, "t1", "teacher@example.com", time.Now(), "active")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, due_date, max_points, created_by, created_by_email, created_at, status FROM assignments WHERE id = $1 LIMIT 1")).
		WithArgs("a1").
		WillReturnRows(rows)

	a, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 50, a.MaxPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, due_date, max_points, created_by, created_by_email, created_at, status FROM assignments WHERE id = $1 LIMIT 1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
