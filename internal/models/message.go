package models

import "time"

// MessageRole is the speaker of a transcript line.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatMessage is one logged line of a student conversation. SessionID is cleared when the session
// is reset so transcripts outlive attempt resets.
type ChatMessage struct {
	ID        string      `db:"id" json:"id"`
	SessionID *string     `db:"session_id" json:"session_id,omitempty"`
	StudentID string      `db:"student_id" json:"student_id"`
	ChatbotID string      `db:"chatbot_id" json:"chatbot_id"`
	Role      MessageRole `db:"role" json:"role"`
	Content   string      `db:"content" json:"content"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
