package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// UsageGateRepository backs the access gate and the attempt reset.
type UsageGateRepository struct {
	db *sqlx.DB
}

// NewUsageGateRepository constructs the repository.
func NewUsageGateRepository(db *sqlx.DB) *UsageGateRepository {
	return &UsageGateRepository{db: db}
}

// FindStudentProfile resolves the profile and class name bound to an authentication identity.
func (r *UsageGateRepository) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT s.id, s.user_id, s.teacher_id, s.class_id, c.name AS class_name
FROM students s
LEFT JOIN classes c ON c.id = s.class_id
WHERE s.user_id = $1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// FindChatbotConfig loads the allow-list and attempt limit.
func (r *UsageGateRepository) FindChatbotConfig(ctx context.Context, chatbotID string) (*models.ChatbotConfig, error) {
	return findChatbotConfig(ctx, r.db, chatbotID)
}

// CountSessions returns how many attempts the student has used on the chatbot.
func (r *UsageGateRepository) CountSessions(ctx context.Context, studentID, chatbotID string) (int, error) {
	return countSessions(ctx, r.db, studentID, chatbotID)
}

func countSessions(ctx context.Context, db sqlx.QueryerContext, studentID, chatbotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM usage_sessions WHERE student_id = $1 AND chatbot_id = $2`
	var count int
	if err := sqlx.GetContext(ctx, db, &count, query, studentID, chatbotID); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// InsertSession re-counts and inserts under a transaction scoped advisory lock on the
// (student, chatbot) pair, so concurrent starts serialise and the limit cannot be overshot.
// It returns the attempt count including the new row, or ErrAttemptLimitReached.
func (r *UsageGateRepository) InsertSession(ctx context.Context, session *models.UsageSession, limit models.AttemptLimit) (count int, err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert session tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lock = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err = tx.ExecContext(ctx, lock, session.StudentID+":"+session.ChatbotID); err != nil {
		return 0, fmt.Errorf("lock session pair: %w", err)
	}

	used, err := countSessions(ctx, tx, session.StudentID, session.ChatbotID)
	if err != nil {
		return 0, err
	}
	if !limit.Permits(used) {
		err = ErrAttemptLimitReached
		return used, err
	}

	const insert = `INSERT INTO usage_sessions (id, student_id, chatbot_id, created_at) VALUES (:id, :student_id, :chatbot_id, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, session); err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert session: %w", err)
	}
	return used + 1, nil
}

// DeleteSessions removes the usage rows selected by filter. Every statement joins on the chatbot
// owner so a forged chatbot or student id cannot reach another teacher's rows.
func (r *UsageGateRepository) DeleteSessions(ctx context.Context, filter models.ResetFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	query := `DELETE FROM usage_sessions us USING chatbots c
WHERE us.chatbot_id = c.id AND c.teacher_id = $1 AND us.chatbot_id = $2`
	args := []interface{}{filter.TeacherID, filter.ChatbotID}
	switch filter.Scope {
	case models.ResetScopeStudent:
		query += ` AND us.student_id = $3 AND us.student_id IN (SELECT s.id FROM students s WHERE s.teacher_id = $1)`
		args = append(args, filter.StudentID)
	case models.ResetScopeClass:
		query += ` AND us.student_id IN (SELECT s.id FROM students s JOIN classes cl ON cl.id = s.class_id WHERE cl.teacher_id = $1 AND cl.name = $3)`
		args = append(args, filter.ClassName)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions rows affected: %w", err)
	}
	return deleted, nil
}

// FindSession returns a session by id.
func (r *UsageGateRepository) FindSession(ctx context.Context, id string) (*models.UsageSession, error) {
	const query = `SELECT id, student_id, chatbot_id, created_at FROM usage_sessions WHERE id = $1`
	var session models.UsageSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// CountByStudent returns used attempts per chatbot for one student.
func (r *UsageGateRepository) CountByStudent(ctx context.Context, studentID string) (map[string]int, error) {
	const query = `SELECT chatbot_id, COUNT(*) AS used FROM usage_sessions WHERE student_id = $1 GROUP BY chatbot_id`
	var rows []struct {
		ChatbotID string `db:"chatbot_id"`
		Used      int    `db:"used"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("count sessions by student: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ChatbotID] = row.Used
	}
	return counts, nil
}
