package models

import (
	"fmt"
	"time"
)

// UsageSession is one accepted chatbot start and the unit of quota accounting.
type UsageSession struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ChatbotID string    `db:"chatbot_id" json:"chatbot_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResetScope selects which usage rows an administrative reset removes.
type ResetScope string

const (
	ResetScopeStudent ResetScope = "student"
	ResetScopeClass   ResetScope = "class"
	ResetScopeChatbot ResetScope = "chatbot"
)

// ResetFilter identifies the rows to delete. TeacherID is always applied.
type ResetFilter struct {
	TeacherID string
	ChatbotID string
	Scope     ResetScope
	StudentID string
	ClassName string
}

// Validate checks that the fields the scope needs are present.
func (f ResetFilter) Validate() error {
	if f.TeacherID == "" || f.ChatbotID == "" {
		return fmt.Errorf("teacher and chatbot are required")
	}
	switch f.Scope {
	case ResetScopeStudent:
		if f.StudentID == "" {
			return fmt.Errorf("student_id is required for scope %q", f.Scope)
		}
	case ResetScopeClass:
		if f.ClassName == "" {
			return fmt.Errorf("class_name is required for scope %q", f.Scope)
		}
	case ResetScopeChatbot:
	default:
		return fmt.Errorf("unknown reset scope %q", f.Scope)
	}
	return nil
}
