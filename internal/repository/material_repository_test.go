package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/models"
)

func TestCreateMaterial(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectExec("INSERT INTO materials").WillReturnResult(sqlmock.NewResult(1, 1))

	m := &models.Material{ChatbotID: "bot-1", ObjectKey: "materials/bot-1/x-a.pdf", Filename: "a.pdf", MimeType: "application/pdf", SizeBytes: 10}
	require.NoError(t, repo.Create(context.Background(), m))
	assert.NotEmpty(t, m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMaterialReturnsKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM materials WHERE chatbot_id = $1 AND id = $2 RETURNING object_key")).
		WithArgs("bot-1", "m-1").
		WillReturnRows(sqlmock.NewRows([]string{"object_key"}).AddRow("materials/bot-1/x-a.pdf"))

	key, err := repo.Delete(context.Background(), "bot-1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, "materials/bot-1/x-a.pdf", key)
}

func TestDeleteMaterialMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	mock.ExpectQuery("DELETE FROM materials").WillReturnError(sql.ErrNoRows)

	_, err := repo.Delete(context.Background(), "bot-1", "m-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
