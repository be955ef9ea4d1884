package models

import "time"

// StudentUsage aggregates one student's activity on a chatbot.
type StudentUsage struct {
	StudentID     string     `db:"student_id" json:"student_id"`
	FullName      string     `db:"full_name" json:"full_name"`
	ClassName     *string    `db:"class_name" json:"class_name,omitempty"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastSessionAt *time.Time `db:"last_session_at" json:"last_session_at,omitempty"`
	GoalsAchieved int        `db:"goals_achieved" json:"goals_achieved"`
	GoalsTotal    int        `db:"goals_total" json:"goals_total"`
}
