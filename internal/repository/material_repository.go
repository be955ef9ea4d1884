package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// MaterialRepository records teaching files uploaded to the blob store.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts a material row.
func (r *MaterialRepository) Create(ctx context.Context, m *models.Material) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO materials (id, chatbot_id, object_key, filename, mime_type, size_bytes, created_at) VALUES (:id, :chatbot_id, :object_key, :filename, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// ListByChatbot returns a chatbot's materials newest first.
func (r *MaterialRepository) ListByChatbot(ctx context.Context, chatbotID string) ([]models.Material, error) {
	const query = `SELECT id, chatbot_id, object_key, filename, mime_type, size_bytes, created_at FROM materials WHERE chatbot_id = $1 ORDER BY created_at DESC`
	var items []models.Material
	if err := r.db.SelectContext(ctx, &items, query, chatbotID); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return items, nil
}

// FindByID returns a material of the given chatbot.
func (r *MaterialRepository) FindByID(ctx context.Context, chatbotID, id string) (*models.Material, error) {
	const query = `SELECT id, chatbot_id, object_key, filename, mime_type, size_bytes, created_at FROM materials WHERE chatbot_id = $1 AND id = $2`
	var m models.Material
	if err := r.db.GetContext(ctx, &m, query, chatbotID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find material: %w", err)
	}
	return &m, nil
}

// Delete removes the row and returns the object key so the caller can delete the blob.
func (r *MaterialRepository) Delete(ctx context.Context, chatbotID, id string) (string, error) {
	const query = `DELETE FROM materials WHERE chatbot_id = $1 AND id = $2 RETURNING object_key`
	var key string
	if err := r.db.GetContext(ctx, &key, query, chatbotID, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("delete material: %w", err)
	}
	return key, nil
}
