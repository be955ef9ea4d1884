package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
)

type messageRepository interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	Transcript(ctx context.Context, studentID, chatbotID string) ([]models.ChatMessage, error)
}

type sessionReader interface {
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	FindSession(ctx context.Context, id string) (*models.UsageSession, error)
}

// ConversationService logs transcript lines against usage sessions.
type ConversationService struct {
	messages  messageRepository
	sessions  sessionReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConversationService constructs the service.
func NewConversationService(messages messageRepository, sessions sessionReader, validate *validator.Validate, logger *zap.Logger) *ConversationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{messages: messages, sessions: sessions, validator: validate, logger: logger}
}

// AppendMessage records a line in a session owned by the calling student.
func (s *ConversationService) AppendMessage(ctx context.Context, userID, sessionID string, req dto.AppendMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	profile, err := s.sessions.FindStudentProfile(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrProfileNotFound, "student profile not found")
		}
		return nil, storeError(err, "failed to load student profile")
	}

	if !validUUID(sessionID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	session, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, storeError(err, "failed to load session")
	}
	if session.StudentID != profile.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another student")
	}

	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: &session.ID,
		StudentID: session.StudentID,
		ChatbotID: session.ChatbotID,
		Role:      models.MessageRole(req.Role),
		Content:   req.Content,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, storeError(err, "failed to store message")
	}
	return msg, nil
}

// Transcript returns the student's lines with the chatbot across all sessions, oldest first.
func (s *ConversationService) Transcript(ctx context.Context, studentID, chatbotID string) ([]models.ChatMessage, error) {
	messages, err := s.messages.Transcript(ctx, studentID, chatbotID)
	if err != nil {
		return nil, storeError(err, "failed to load transcript")
	}
	return messages, nil
}
