package models

import "time"

// Class is a named group of students owned by one teacher.
type Class struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassSummary is a class with its current head count.
type ClassSummary struct {
	Class
	StudentCount int `db:"student_count" json:"student_count"`
}
