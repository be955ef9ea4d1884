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

// ClassRepository manages a teacher's classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a class. Names are unique per teacher.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO classes (id, teacher_id, name, created_at) VALUES (:id, :teacher_id, :name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create class %s: %w", class.Name, ErrDuplicate)
		}
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// List returns the teacher's classes with head counts.
func (r *ClassRepository) List(ctx context.Context, teacherID string) ([]models.ClassSummary, error) {
	const query = `SELECT c.id, c.teacher_id, c.name, c.created_at, COUNT(s.id) AS student_count
FROM classes c
LEFT JOIN students s ON s.class_id = c.id
WHERE c.teacher_id = $1
GROUP BY c.id
ORDER BY c.name`
	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindByID returns a class owned by teacherID.
func (r *ClassRepository) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	const query = `SELECT id, teacher_id, name, created_at FROM classes WHERE teacher_id = $1 AND id = $2`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, teacherID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// Delete removes a class; its students become unassigned.
func (r *ClassRepository) Delete(ctx context.Context, teacherID, id string) error {
	const query = `DELETE FROM classes WHERE teacher_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, teacherID, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return expectAffected(res)
}
