package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/models"
)

const (
	lockQuery  = "SELECT pg_advisory_xact_lock(hashtext($1))"
	countQuery = "SELECT COUNT(*) FROM usage_sessions WHERE student_id = $1 AND chatbot_id = $2"
)

func TestFindStudentProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "teacher_id", "class_id", "class_name"}).
		AddRow("student-1", "user-1", "teacher-1", "class-1", "3-2")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.user_id = $1")).WithArgs("user-1").WillReturnRows(rows)

	profile, err := repo.FindStudentProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, profile.HasClass())
	assert.Equal(t, "3-2", *profile.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStudentProfileWithoutClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "teacher_id", "class_id", "class_name"}).
		AddRow("student-1", "user-1", "teacher-1", nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.user_id = $1")).WithArgs("user-1").WillReturnRows(rows)

	profile, err := repo.FindStudentProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, profile.HasClass())
}

func TestFindChatbotConfig(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "name", "allowed_classes", "max_attempts"}).
		AddRow("bot-1", "teacher-1", "Photosynthesis", "{3-1,3-2}", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, teacher_id, name, allowed_classes, max_attempts FROM chatbots WHERE id = $1")).
		WithArgs("bot-1").WillReturnRows(rows)

	cfg, err := repo.FindChatbotConfig(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"3-1", "3-2"}, cfg.AllowedClasses)
	max, ok := cfg.Limit.Max()
	assert.True(t, ok)
	assert.Equal(t, 2, max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindChatbotConfigNullColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "name", "allowed_classes", "max_attempts"}).
		AddRow("bot-1", "teacher-1", "Open bot", nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM chatbots WHERE id = $1")).WithArgs("bot-1").WillReturnRows(rows)

	cfg, err := repo.FindChatbotConfig(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.False(t, cfg.Restricted())
	assert.Equal(t, models.AttemptsUnlimited, cfg.Limit.Kind())
}

func TestFindChatbotConfigNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM chatbots WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindChatbotConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInsertSessionWithinLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WithArgs("student-1:bot-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).WithArgs("student-1", "bot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO usage_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	session := &models.UsageSession{StudentID: "student-1", ChatbotID: "bot-1"}
	count, err := repo.InsertSession(context.Background(), session, models.Limited(2))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSessionLimitReachedRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WithArgs("student-1:bot-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).WithArgs("student-1", "bot-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	count, err := repo.InsertSession(context.Background(), &models.UsageSession{StudentID: "student-1", ChatbotID: "bot-1"}, models.Limited(2))
	assert.ErrorIs(t, err, ErrAttemptLimitReached)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSessionUnlimited(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(countQuery)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(999))
	mock.ExpectExec("INSERT INTO usage_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	count, err := repo.InsertSession(context.Background(), &models.UsageSession{StudentID: "s", ChatbotID: "b"}, models.Unlimited())
	require.NoError(t, err)
	assert.Equal(t, 1000, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSessionsScopes(t *testing.T) {
	cases := []struct {
		name   string
		filter models.ResetFilter
		match  string
		args   []driver.Value
	}{
		{
			name:   "student",
			filter: models.ResetFilter{TeacherID: "t-1", ChatbotID: "bot-1", Scope: models.ResetScopeStudent, StudentID: "s-1"},
			match:  "AND us.student_id = $3 AND us.student_id IN (SELECT s.id FROM students s WHERE s.teacher_id = $1)",
			args:   []driver.Value{"t-1", "bot-1", "s-1"},
		},
		{
			name:   "class",
			filter: models.ResetFilter{TeacherID: "t-1", ChatbotID: "bot-1", Scope: models.ResetScopeClass, ClassName: "3-1"},
			match:  "WHERE cl.teacher_id = $1 AND cl.name = $3)",
			args:   []driver.Value{"t-1", "bot-1", "3-1"},
		},
		{
			name:   "chatbot",
			filter: models.ResetFilter{TeacherID: "t-1", ChatbotID: "bot-1", Scope: models.ResetScopeChatbot},
			match:  "WHERE us.chatbot_id = c.id AND c.teacher_id = $1 AND us.chatbot_id = $2",
			args:   []driver.Value{"t-1", "bot-1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewUsageGateRepository(db)

			mock.ExpectExec(regexp.QuoteMeta(tc.match)).WithArgs(tc.args...).WillReturnResult(sqlmock.NewResult(0, 3))

			deleted, err := repo.DeleteSessions(context.Background(), tc.filter)
			require.NoError(t, err)
			assert.Equal(t, int64(3), deleted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteSessionsRejectsIncompleteFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	_, err := repo.DeleteSessions(context.Background(), models.ResetFilter{TeacherID: "t-1", ChatbotID: "bot-1", Scope: models.ResetScopeClass})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageGateRepository(db)

	rows := sqlmock.NewRows([]string{"chatbot_id", "used"}).AddRow("bot-1", 2).AddRow("bot-2", 5)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY chatbot_id")).WithArgs("s-1").WillReturnRows(rows)

	counts, err := repo.CountByStudent(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"bot-1": 2, "bot-2": 5}, counts)
}
