package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/techkwon/Qbot/internal/models"
)

// StudentRepository manages student profiles and their login identities.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailSelect = `SELECT s.id, s.user_id, s.teacher_id, s.class_id, s.full_name, s.student_number, s.created_at, s.updated_at, u.email, c.name AS class_name
FROM students s
JOIN users u ON u.id = s.user_id
LEFT JOIN classes c ON c.id = s.class_id`

// FindByID returns a student owned by teacherID.
func (r *StudentRepository) FindByID(ctx context.Context, teacherID, id string) (*models.StudentDetail, error) {
	query := studentDetailSelect + ` WHERE s.teacher_id = $1 AND s.id = $2`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, teacherID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByUserID returns the profile bound to an authentication identity.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	query := studentDetailSelect + ` WHERE s.user_id = $1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user: %w", err)
	}
	return &student, nil
}

// List returns the teacher's students ordered by class then name, with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	conditions := []string{"s.teacher_id = $1"}
	args := []interface{}{filter.TeacherID}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(u.email) LIKE $%d OR s.student_number LIKE $%d)", len(args), len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s ORDER BY c.name NULLS LAST, s.full_name LIMIT %d OFFSET %d", studentDetailSelect, where, pageSize, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM students s JOIN users u ON u.id = s.user_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// CreateWithUser inserts the login identity and the profile in one transaction.
func (r *StudentRepository) CreateWithUser(ctx context.Context, user *models.User, student *models.Student) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertUser(ctx, tx, user); err != nil {
		return err
	}

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.UserID = user.ID
	student.CreatedAt = now
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, user_id, teacher_id, class_id, full_name, student_number, created_at, updated_at) VALUES (:id, :user_id, :teacher_id, :class_id, :full_name, :student_number, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// UpdateClass moves a student into classID, or out of any class when classID is nil. The class must
// belong to the same teacher.
func (r *StudentRepository) UpdateClass(ctx context.Context, teacherID, studentID string, classID *string) error {
	const query = `UPDATE students SET class_id = $3, updated_at = $4
WHERE teacher_id = $1 AND id = $2
AND ($3::uuid IS NULL OR EXISTS (SELECT 1 FROM classes WHERE id = $3::uuid AND teacher_id = $1))`
	res, err := r.db.ExecContext(ctx, query, teacherID, studentID, classID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student class: %w", err)
	}
	return expectAffected(res)
}

// DeleteWithUser removes the login identity; the profile and its sessions cascade.
func (r *StudentRepository) DeleteWithUser(ctx context.Context, teacherID, studentID string) error {
	const query = `DELETE FROM users WHERE id = (SELECT user_id FROM students WHERE teacher_id = $1 AND id = $2)`
	res, err := r.db.ExecContext(ctx, query, teacherID, studentID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return expectAffected(res)
}

// expectAffected maps a no-op write to sql.ErrNoRows.
func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
