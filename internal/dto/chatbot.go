package dto

import "github.com/techkwon/Qbot/internal/models"

// GoalInput describes a learning goal in create and update payloads.
type GoalInput struct {
	Text     string   `json:"text" validate:"required,max=500"`
	Keywords []string `json:"keywords" validate:"omitempty,max=20,dive,max=50"`
}

// CreateChatbotRequest creates a chatbot. A null allowed_classes or max_attempts means no restriction.
type CreateChatbotRequest struct {
	Name           string      `json:"name" validate:"required,max=100"`
	Description    string      `json:"description" validate:"max=1000"`
	SystemPrompt   string      `json:"system_prompt" validate:"max=8000"`
	AllowedClasses []string    `json:"allowed_classes" validate:"omitempty,dive,required,max=64"`
	MaxAttempts    *int        `json:"max_attempts" validate:"omitempty,min=0,max=1000"`
	Goals          []GoalInput `json:"goals" validate:"omitempty,max=20,dive"`
}

// UpdateChatbotRequest replaces the chatbot configuration including its goal set.
type UpdateChatbotRequest = CreateChatbotRequest

// StudentChatbotResponse is a chatbot as a student sees it in their list.
type StudentChatbotResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	MaxAttempts     *int   `json:"max_attempts"`
	CurrentAttempts int    `json:"current_attempts"`
	Remaining       *int   `json:"remaining"`
}

// ChatbotListResponse wraps teacher chatbot listings.
type ChatbotListResponse struct {
	Items []models.Chatbot `json:"items"`
}
