package dto

import "github.com/techkwon/Qbot/internal/models"

// EvaluateRequest asks for a goal evaluation of one student's conversations on a chatbot.
type EvaluateRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

// EvaluationResponse carries the stored verdicts. Pending is true when the evaluator failed and a
// retry was scheduled.
type EvaluationResponse struct {
	StudentID string                  `json:"student_id"`
	ChatbotID string                  `json:"chatbot_id"`
	Pending   bool                    `json:"pending"`
	Results   []models.GoalEvaluation `json:"results"`
}
