package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
)

type chatbotOwnership interface {
	AssertOwnsChatbot(ctx context.Context, teacherID, chatbotID string) (*models.ChatbotConfig, error)
}

// AttemptsResetEvent is published after an administrative reset.
type AttemptsResetEvent struct {
	TeacherID string `json:"teacher_id"`
	ChatbotID string `json:"chatbot_id"`
	Scope     string `json:"scope"`
	StudentID string `json:"student_id,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Deleted   int64  `json:"deleted"`
}

// AttemptService owns chatbot ownership checks and usage resets.
type AttemptService struct {
	repo      UsageGateRepository
	validator *validator.Validate
	metrics   *MetricsService
	notifier  notifier
	logger    *zap.Logger
}

// NewAttemptService constructs the service.
func NewAttemptService(repo UsageGateRepository, validate *validator.Validate, publisher events.Publisher, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AttemptService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptService{
		repo:      repo,
		validator: validate,
		metrics:   metrics,
		notifier:  newNotifier(publisher, cache, logger),
		logger:    logger,
	}
}

// AssertOwnsChatbot loads the chatbot and verifies teacherID owns it. Every administrative mutation
// on a chatbot goes through here.
func (s *AttemptService) AssertOwnsChatbot(ctx context.Context, teacherID, chatbotID string) (*models.ChatbotConfig, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}
	if !validUUID(chatbotID) {
		return nil, appErrors.Clone(appErrors.ErrChatbotNotFound, "chatbot not found")
	}
	config, err := s.repo.FindChatbotConfig(ctx, chatbotID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrChatbotNotFound, "chatbot not found")
		}
		return nil, storeError(err, "failed to load chatbot")
	}
	if config.TeacherID != teacherID {
		s.logger.Warn("chatbot ownership check failed", zap.String("teacher_id", teacherID), zap.String("chatbot_id", chatbotID))
		return nil, appErrors.Clone(appErrors.ErrForbidden, "chatbot belongs to another teacher")
	}
	return config, nil
}

// Reset deletes usage sessions on a chatbot for one student, one class, or everyone.
func (s *AttemptService) Reset(ctx context.Context, teacherID, chatbotID string, req dto.ResetAttemptsRequest) (*dto.ResetAttemptsResponse, error) {
	req.ClassName = strings.TrimSpace(req.ClassName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}

	config, err := s.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}

	filter := models.ResetFilter{
		TeacherID: teacherID,
		ChatbotID: config.ID,
		Scope:     models.ResetScope(req.Scope),
	}
	switch filter.Scope {
	case models.ResetScopeStudent:
		filter.StudentID = req.StudentID
	case models.ResetScopeClass:
		filter.ClassName = req.ClassName
	}
	if err := filter.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	deleted, err := s.repo.DeleteSessions(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to reset attempts")
	}

	s.logger.Info("attempts reset",
		zap.String("teacher_id", teacherID),
		zap.String("chatbot_id", config.ID),
		zap.String("scope", req.Scope),
		zap.Int64("deleted", deleted),
	)
	s.metrics.RecordAttemptReset(req.Scope, deleted)
	s.notifier.publish(ctx, events.SubjectAttemptsReset, AttemptsResetEvent{
		TeacherID: teacherID,
		ChatbotID: config.ID,
		Scope:     req.Scope,
		StudentID: filter.StudentID,
		ClassName: filter.ClassName,
		Deleted:   deleted,
	})
	s.notifier.invalidateDashboard(ctx, config.ID)

	return &dto.ResetAttemptsResponse{ChatbotID: config.ID, Scope: req.Scope, Deleted: deleted}, nil
}
