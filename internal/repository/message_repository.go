package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// MessageRepository stores conversation transcripts.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts one transcript line.
func (r *MessageRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO chat_messages (id, session_id, student_id, chatbot_id, role, content, created_at) VALUES (:id, :session_id, :student_id, :chatbot_id, :role, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Transcript returns every line the student exchanged with the chatbot, oldest first.
func (r *MessageRepository) Transcript(ctx context.Context, studentID, chatbotID string) ([]models.ChatMessage, error) {
	const query = `SELECT id, session_id, student_id, chatbot_id, role, content, created_at FROM chat_messages WHERE student_id = $1 AND chatbot_id = $2 ORDER BY created_at, id`
	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, studentID, chatbotID); err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return messages, nil
}
