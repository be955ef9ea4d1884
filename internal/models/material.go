package models

import "time"

// Material is a teaching file stored in the blob store and attached to a chatbot.
type Material struct {
	ID        string    `db:"id" json:"id"`
	ChatbotID string    `db:"chatbot_id" json:"chatbot_id"`
	ObjectKey string    `db:"object_key" json:"object_key"`
	Filename  string    `db:"filename" json:"filename"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
