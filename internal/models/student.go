package models

import "time"

// Student is the learner profile attached to a STUDENT user. A student belongs to at most one class.
type Student struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	ClassID       *string   `db:"class_id" json:"class_id,omitempty"`
	FullName      string    `db:"full_name" json:"full_name"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail adds the login email and class name for roster listings.
type StudentDetail struct {
	Student
	Email     string  `db:"email" json:"email"`
	ClassName *string `db:"class_name" json:"class_name,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	TeacherID string
	ClassID   string
	Search    string
	Page      int
	PageSize  int
}

// StudentProfile is the slice of a student the access gate decides on.
type StudentProfile struct {
	ID        string  `db:"id"`
	UserID    string  `db:"user_id"`
	TeacherID string  `db:"teacher_id"`
	ClassID   *string `db:"class_id"`
	ClassName *string `db:"class_name"`
}

// HasClass reports whether the student is assigned to a class.
func (p StudentProfile) HasClass() bool {
	return p.ClassID != nil && p.ClassName != nil
}
