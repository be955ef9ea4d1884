package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// DashboardRepository aggregates usage and evaluation data for teacher dashboards.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// StudentUsage returns one row per student of the chatbot's teacher who is admitted by the allow-list
// or has used the chatbot at least once.
func (r *DashboardRepository) StudentUsage(ctx context.Context, chatbotID string) ([]models.StudentUsage, error) {
	const query = `SELECT s.id AS student_id, s.full_name, cl.name AS class_name,
	COALESCE(u.attempts, 0) AS attempts, u.last_session_at,
	COALESCE(e.achieved, 0) AS goals_achieved,
	(SELECT COUNT(*) FROM learning_goals g WHERE g.chatbot_id = cb.id) AS goals_total
FROM chatbots cb
JOIN students s ON s.teacher_id = cb.teacher_id
LEFT JOIN classes cl ON cl.id = s.class_id
LEFT JOIN (
	SELECT student_id, COUNT(*) AS attempts, MAX(created_at) AS last_session_at
	FROM usage_sessions WHERE chatbot_id = $1 GROUP BY student_id
) u ON u.student_id = s.id
LEFT JOIN (
	SELECT student_id, COUNT(*) FILTER (WHERE achieved AND status = 'completed') AS achieved
	FROM goal_evaluations WHERE chatbot_id = $1 GROUP BY student_id
) e ON e.student_id = s.id
WHERE cb.id = $1
AND (u.attempts IS NOT NULL OR COALESCE(cardinality(cb.allowed_classes), 0) = 0 OR cl.name = ANY(cb.allowed_classes))
ORDER BY cl.name NULLS LAST, s.full_name`
	var rows []models.StudentUsage
	if err := r.db.SelectContext(ctx, &rows, query, chatbotID); err != nil {
		return nil, fmt.Errorf("dashboard student usage: %w", err)
	}
	return rows, nil
}
