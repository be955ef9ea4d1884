package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/repository"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	List(ctx context.Context, teacherID string) ([]models.ClassSummary, error)
	FindByID(ctx context.Context, teacherID, id string) (*models.Class, error)
	Delete(ctx context.Context, teacherID, id string) error
}

type studentRepository interface {
	FindByID(ctx context.Context, teacherID, id string) (*models.StudentDetail, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	CreateWithUser(ctx context.Context, user *models.User, student *models.Student) error
	UpdateClass(ctx context.Context, teacherID, studentID string, classID *string) error
	DeleteWithUser(ctx context.Context, teacherID, studentID string) error
}

// RosterService manages a teacher's classes and student accounts.
type RosterService struct {
	classes   classRepository
	students  studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs the service.
func NewRosterService(classes classRepository, students studentRepository, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{classes: classes, students: students, validator: validate, logger: logger}
}

// CreateClass adds a class. Names are unique per teacher because the allow-lists refer to them.
func (s *RosterService) CreateClass(ctx context.Context, teacherID string, req dto.CreateClassRequest) (*models.Class, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{ID: uuid.NewString(), TeacherID: teacherID, Name: req.Name}
	if err := s.classes.Create(ctx, class); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists")
		}
		return nil, storeError(err, "failed to create class")
	}
	return class, nil
}

// ListClasses returns the teacher's classes with head counts.
func (s *RosterService) ListClasses(ctx context.Context, teacherID string) ([]models.ClassSummary, error) {
	classes, err := s.classes.List(ctx, teacherID)
	if err != nil {
		return nil, storeError(err, "failed to list classes")
	}
	if classes == nil {
		classes = []models.ClassSummary{}
	}
	return classes, nil
}

// DeleteClass removes a class. Its students stay, without a class.
func (s *RosterService) DeleteClass(ctx context.Context, teacherID, classID string) error {
	if !validUUID(classID) {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	if err := s.classes.Delete(ctx, teacherID, classID); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return storeError(err, "failed to delete class")
	}
	return nil
}

// CreateStudent creates the student's login and profile together.
func (s *RosterService) CreateStudent(ctx context.Context, teacherID string, req dto.CreateStudentRequest) (*models.StudentDetail, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	var className *string
	if req.ClassID != nil {
		class, err := s.ownedClass(ctx, teacherID, *req.ClassID)
		if err != nil {
			return nil, err
		}
		className = &class.Name
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         models.RoleStudent,
		Active:       true,
	}
	student := &models.Student{
		ID:            uuid.NewString(),
		TeacherID:     teacherID,
		ClassID:       req.ClassID,
		FullName:      req.FullName,
		StudentNumber: req.StudentNumber,
	}
	if err := s.students.CreateWithUser(ctx, user, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, storeError(err, "failed to create student")
	}

	s.logger.Info("student created", zap.String("student_id", student.ID), zap.String("teacher_id", teacherID))
	return &models.StudentDetail{Student: *student, Email: user.Email, ClassName: className}, nil
}

// ListStudents lists the teacher's students, optionally within one class.
func (s *RosterService) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if filter.ClassID != "" && !validUUID(filter.ClassID) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "class_id must be a uuid")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list students")
	}
	if students == nil {
		students = []models.StudentDetail{}
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// AssignClass moves a student into a class of the same teacher, or out of any class.
func (s *RosterService) AssignClass(ctx context.Context, teacherID, studentID string, req dto.AssignClassRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class assignment")
	}
	if !validUUID(studentID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if req.ClassID != nil {
		if _, err := s.ownedClass(ctx, teacherID, *req.ClassID); err != nil {
			return nil, err
		}
	}
	if err := s.students.UpdateClass(ctx, teacherID, studentID, req.ClassID); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to assign class")
	}
	student, err := s.students.FindByID(ctx, teacherID, studentID)
	if err != nil {
		return nil, storeError(err, "failed to reload student")
	}
	return student, nil
}

// DeleteStudent removes the student's login; profile, sessions and transcripts follow.
func (s *RosterService) DeleteStudent(ctx context.Context, teacherID, studentID string) error {
	if !validUUID(studentID) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err := s.students.DeleteWithUser(ctx, teacherID, studentID); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return storeError(err, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("student_id", studentID), zap.String("teacher_id", teacherID))
	return nil
}

func (s *RosterService) ownedClass(ctx context.Context, teacherID, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, teacherID, classID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, storeError(err, "failed to load class")
	}
	return class, nil
}
