package dto

// CreateClassRequest creates a class under the calling teacher.
type CreateClassRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// CreateStudentRequest creates a student login and profile in one step.
type CreateStudentRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	Password      string  `json:"password" validate:"required,min=6,max=72"`
	FullName      string  `json:"full_name" validate:"required,max=100"`
	StudentNumber string  `json:"student_number" validate:"max=32"`
	ClassID       *string `json:"class_id" validate:"omitempty,uuid"`
}

// AssignClassRequest moves a student to a class, or out of any class when class_id is null.
type AssignClassRequest struct {
	ClassID *string `json:"class_id" validate:"omitempty,uuid"`
}
