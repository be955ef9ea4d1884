package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/models"
)

func TestCreateClassDuplicateName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").WillReturnError(&pq.Error{Code: uniqueViolation})

	err := repo.Create(context.Background(), &models.Class{TeacherID: "t-1", Name: "3-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClassesWithCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "teacher_id", "name", "created_at", "student_count"}).
		AddRow("c-1", "t-1", "3-1", now, 24).
		AddRow("c-2", "t-1", "3-2", now, 0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.teacher_id = $1")).WithArgs("t-1").WillReturnRows(rows)

	classes, err := repo.List(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, 24, classes[0].StudentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
