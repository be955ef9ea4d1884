package models

import "time"

// EvaluationStatus tracks whether a verdict came back from the evaluator.
type EvaluationStatus string

const (
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationPending   EvaluationStatus = "pending"
)

// GoalEvaluation is the stored verdict for one (student, chatbot, goal).
type GoalEvaluation struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ChatbotID   string           `db:"chatbot_id" json:"chatbot_id"`
	GoalID      string           `db:"goal_id" json:"goal_id"`
	GoalText    string           `db:"goal_text" json:"goal_text,omitempty"`
	StudentName string           `db:"student_name" json:"student_name,omitempty"`
	Achieved    bool             `db:"achieved" json:"achieved"`
	Reason      string           `db:"reason" json:"reason"`
	Status      EvaluationStatus `db:"status" json:"status"`
	EvaluatedAt time.Time        `db:"evaluated_at" json:"evaluated_at"`
}

// GoalVerdict is what an evaluator returns for one goal.
type GoalVerdict struct {
	GoalID   string `json:"goal_id"`
	Achieved bool   `json:"achieved"`
	Reason   string `json:"reason"`
}

// EvaluationTarget names a (student, chatbot) pair awaiting evaluation.
type EvaluationTarget struct {
	StudentID string `db:"student_id" json:"student_id"`
	ChatbotID string `db:"chatbot_id" json:"chatbot_id"`
}
