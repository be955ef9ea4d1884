package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// EvaluationRepository stores goal verdicts keyed by (student, chatbot, goal).
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Upsert writes every row in one transaction. A completed row overwrites the previous verdict; a
// pending row only flips the status so an earlier verdict stays readable.
func (r *EvaluationRepository) Upsert(ctx context.Context, rows []models.GoalEvaluation) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert evaluations tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO goal_evaluations (id, student_id, chatbot_id, goal_id, achieved, reason, status, evaluated_at)
VALUES (:id, :student_id, :chatbot_id, :goal_id, :achieved, :reason, :status, :evaluated_at)
ON CONFLICT (student_id, chatbot_id, goal_id) DO UPDATE SET
	achieved = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.achieved ELSE goal_evaluations.achieved END,
	reason = CASE WHEN EXCLUDED.status = 'completed' THEN EXCLUDED.reason ELSE goal_evaluations.reason END,
	status = EXCLUDED.status,
	evaluated_at = EXCLUDED.evaluated_at`
	now := time.Now().UTC()
	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.EvaluatedAt.IsZero() {
			row.EvaluatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("upsert evaluation: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit evaluations: %w", err)
	}
	return nil
}

// List returns verdicts for a chatbot, optionally narrowed to one student, with goal and student names.
func (r *EvaluationRepository) List(ctx context.Context, chatbotID, studentID string) ([]models.GoalEvaluation, error) {
	query := `SELECT e.id, e.student_id, e.chatbot_id, e.goal_id, g.text AS goal_text, s.full_name AS student_name, e.achieved, e.reason, e.status, e.evaluated_at
FROM goal_evaluations e
JOIN learning_goals g ON g.id = e.goal_id
JOIN students s ON s.id = e.student_id
WHERE e.chatbot_id = $1`
	args := []interface{}{chatbotID}
	if studentID != "" {
		query += ` AND e.student_id = $2`
		args = append(args, studentID)
	}
	query += ` ORDER BY s.full_name, g.position`

	var rows []models.GoalEvaluation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return rows, nil
}

// PendingTargets returns distinct (student, chatbot) pairs that still have pending verdicts.
func (r *EvaluationRepository) PendingTargets(ctx context.Context, limit int) ([]models.EvaluationTarget, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT student_id, chatbot_id FROM goal_evaluations WHERE status = 'pending' GROUP BY student_id, chatbot_id ORDER BY MIN(evaluated_at) LIMIT $1`
	var targets []models.EvaluationTarget
	if err := r.db.SelectContext(ctx, &targets, query, limit); err != nil {
		return nil, fmt.Errorf("list pending evaluations: %w", err)
	}
	return targets, nil
}
