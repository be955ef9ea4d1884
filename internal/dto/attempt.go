package dto

// ResetAttemptsRequest is the manage-attempts payload. student_id and class_name are required by
// their respective scopes.
type ResetAttemptsRequest struct {
	Scope     string `json:"scope" validate:"required,oneof=student class chatbot"`
	StudentID string `json:"student_id" validate:"required_if=Scope student,omitempty,uuid"`
	ClassName string `json:"class_name" validate:"required_if=Scope class,omitempty,max=64"`
}

// ResetAttemptsResponse reports how many usage sessions were deleted.
type ResetAttemptsResponse struct {
	ChatbotID string `json:"chatbot_id"`
	Scope     string `json:"scope"`
	Deleted   int64  `json:"deleted"`
}
