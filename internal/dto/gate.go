package dto

// SessionStartResponse is returned when the gate admits a student. MaxAttempts is null when unlimited.
type SessionStartResponse struct {
	ID              string `json:"id"`
	ChatbotID       string `json:"chatbot_id"`
	CurrentAttempts int    `json:"current_attempts"`
	MaxAttempts     *int   `json:"max_attempts"`
}

// UsageStatusResponse is a read-only view of a student's quota on a chatbot.
type UsageStatusResponse struct {
	ChatbotID       string `json:"chatbot_id"`
	CurrentAttempts int    `json:"current_attempts"`
	MaxAttempts     *int   `json:"max_attempts"`
	Remaining       *int   `json:"remaining"`
	Allowed         bool   `json:"allowed"`
}
