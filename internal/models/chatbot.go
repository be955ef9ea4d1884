package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Chatbot is a teacher configured conversational agent.
type Chatbot struct {
	ID             string         `db:"id" json:"id"`
	TeacherID      string         `db:"teacher_id" json:"teacher_id"`
	Name           string         `db:"name" json:"name"`
	Description    string         `db:"description" json:"description"`
	SystemPrompt   string         `db:"system_prompt" json:"system_prompt"`
	AllowedClasses pq.StringArray `db:"allowed_classes" json:"allowed_classes"`
	MaxAttempts    *int           `db:"max_attempts" json:"max_attempts"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	Goals          []LearningGoal `db:"-" json:"goals,omitempty"`
}

// Config projects the row onto the fields the access gate needs.
func (c *Chatbot) Config() *ChatbotConfig {
	return &ChatbotConfig{
		ID:             c.ID,
		TeacherID:      c.TeacherID,
		Name:           c.Name,
		AllowedClasses: []string(c.AllowedClasses),
		Limit:          AttemptLimitFromNullable(c.MaxAttempts),
	}
}

// ChatbotConfig is what the gate and the ownership check read.
type ChatbotConfig struct {
	ID             string
	TeacherID      string
	Name           string
	AllowedClasses []string
	Limit          AttemptLimit
}

// Restricted reports whether an allow-list is in force. NULL and empty both mean open access.
func (c *ChatbotConfig) Restricted() bool {
	return len(c.AllowedClasses) > 0
}

// AllowsClass reports whether className is on the allow-list. Open chatbots admit everyone.
func (c *ChatbotConfig) AllowsClass(className string) bool {
	if !c.Restricted() {
		return true
	}
	name := strings.TrimSpace(className)
	for _, allowed := range c.AllowedClasses {
		if strings.TrimSpace(allowed) == name {
			return true
		}
	}
	return false
}

// LearningGoal is one objective evaluated against a transcript.
type LearningGoal struct {
	ID        string         `db:"id" json:"id"`
	ChatbotID string         `db:"chatbot_id" json:"chatbot_id"`
	Text      string         `db:"text" json:"text"`
	Keywords  pq.StringArray `db:"keywords" json:"keywords"`
	Position  int            `db:"position" json:"position"`
}
