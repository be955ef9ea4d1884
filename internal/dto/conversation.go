package dto

// AppendMessageRequest logs one transcript line into a session the caller owns.
type AppendMessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=20000"`
}
