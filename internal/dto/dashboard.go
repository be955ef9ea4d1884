package dto

import (
	"time"

	"github.com/techkwon/Qbot/internal/models"
)

// ChatbotSummaryResponse is the teacher dashboard for one chatbot.
type ChatbotSummaryResponse struct {
	ChatbotID        string                `json:"chatbot_id"`
	ChatbotName      string                `json:"chatbot_name"`
	MaxAttempts      *int                  `json:"max_attempts"`
	GoalCount        int                   `json:"goal_count"`
	TotalSessions    int                   `json:"total_sessions"`
	DistinctStudents int                   `json:"distinct_students"`
	AchievementRate  float64               `json:"achievement_rate"`
	Students         []models.StudentUsage `json:"students"`
	GeneratedAt      time.Time             `json:"generated_at"`
}
