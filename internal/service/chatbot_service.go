package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
)

type chatbotRepository interface {
	FindByID(ctx context.Context, id string) (*models.Chatbot, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Chatbot, error)
	Create(ctx context.Context, bot *models.Chatbot) error
	Update(ctx context.Context, bot *models.Chatbot) error
	Delete(ctx context.Context, teacherID, id string) error
}

type studentUsageReader interface {
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	CountByStudent(ctx context.Context, studentID string) (map[string]int, error)
}

// ChatbotService manages teacher chatbots and the student catalogue.
type ChatbotService struct {
	repo      chatbotRepository
	usage     studentUsageReader
	ownership chatbotOwnership
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatbotService constructs the service.
func NewChatbotService(repo chatbotRepository, usage studentUsageReader, ownership chatbotOwnership, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ChatbotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatbotService{repo: repo, usage: usage, ownership: ownership, cache: cache, validator: validate, logger: logger}
}

// Create stores a new chatbot owned by teacherID.
func (s *ChatbotService) Create(ctx context.Context, teacherID string, req dto.CreateChatbotRequest) (*models.Chatbot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chatbot payload")
	}
	bot := applyChatbotRequest(&models.Chatbot{TeacherID: teacherID}, req)
	if err := s.repo.Create(ctx, bot); err != nil {
		return nil, storeError(err, "failed to create chatbot")
	}
	s.logger.Info("chatbot created", zap.String("chatbot_id", bot.ID), zap.String("teacher_id", teacherID))
	return bot, nil
}

// Update replaces the configuration and goal set of an owned chatbot.
func (s *ChatbotService) Update(ctx context.Context, teacherID, chatbotID string, req dto.UpdateChatbotRequest) (*models.Chatbot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chatbot payload")
	}
	if _, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID); err != nil {
		return nil, err
	}
	bot := applyChatbotRequest(&models.Chatbot{ID: chatbotID, TeacherID: teacherID}, req)
	if err := s.repo.Update(ctx, bot); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrChatbotNotFound, "chatbot not found")
		}
		return nil, storeError(err, "failed to update chatbot")
	}
	if err := s.cache.Invalidate(ctx, dashboardCacheKey(chatbotID)); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.String("chatbot_id", chatbotID), zap.Error(err))
	}
	return s.Get(ctx, teacherID, chatbotID)
}

// Delete removes an owned chatbot together with its sessions, goals and evaluations.
func (s *ChatbotService) Delete(ctx context.Context, teacherID, chatbotID string) error {
	if _, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, teacherID, chatbotID); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrChatbotNotFound, "chatbot not found")
		}
		return storeError(err, "failed to delete chatbot")
	}
	s.logger.Info("chatbot deleted", zap.String("chatbot_id", chatbotID), zap.String("teacher_id", teacherID))
	return nil
}

// Get returns an owned chatbot with its goals.
func (s *ChatbotService) Get(ctx context.Context, teacherID, chatbotID string) (*models.Chatbot, error) {
	if _, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID); err != nil {
		return nil, err
	}
	bot, err := s.repo.FindByID(ctx, chatbotID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrChatbotNotFound, "chatbot not found")
		}
		return nil, storeError(err, "failed to load chatbot")
	}
	return bot, nil
}

// List returns every chatbot the teacher owns.
func (s *ChatbotService) List(ctx context.Context, teacherID string) ([]models.Chatbot, error) {
	bots, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, storeError(err, "failed to list chatbots")
	}
	if bots == nil {
		bots = []models.Chatbot{}
	}
	return bots, nil
}

// ListForStudent returns the chatbots of the student's teacher that admit the student's class,
// with the attempts already used on each.
func (s *ChatbotService) ListForStudent(ctx context.Context, userID string) ([]dto.StudentChatbotResponse, error) {
	profile, err := s.usage.FindStudentProfile(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrProfileNotFound, "student profile not found")
		}
		return nil, storeError(err, "failed to load student profile")
	}

	bots, err := s.repo.ListByTeacher(ctx, profile.TeacherID)
	if err != nil {
		return nil, storeError(err, "failed to list chatbots")
	}
	counts, err := s.usage.CountByStudent(ctx, profile.ID)
	if err != nil {
		return nil, storeError(err, "failed to count usage sessions")
	}

	result := make([]dto.StudentChatbotResponse, 0, len(bots))
	for i := range bots {
		cfg := bots[i].Config()
		if cfg.Restricted() && (!profile.HasClass() || !cfg.AllowsClass(*profile.ClassName)) {
			continue
		}
		used := counts[cfg.ID]
		result = append(result, dto.StudentChatbotResponse{
			ID:              cfg.ID,
			Name:            bots[i].Name,
			Description:     bots[i].Description,
			MaxAttempts:     cfg.Limit.Nullable(),
			CurrentAttempts: used,
			Remaining:       cfg.Limit.Remaining(used),
		})
	}
	return result, nil
}

func applyChatbotRequest(bot *models.Chatbot, req dto.CreateChatbotRequest) *models.Chatbot {
	bot.Name = strings.TrimSpace(req.Name)
	bot.Description = req.Description
	bot.SystemPrompt = req.SystemPrompt
	bot.MaxAttempts = req.MaxAttempts
	bot.AllowedClasses = nil
	if len(req.AllowedClasses) > 0 {
		classes := make(pq.StringArray, 0, len(req.AllowedClasses))
		for _, name := range req.AllowedClasses {
			classes = append(classes, strings.TrimSpace(name))
		}
		bot.AllowedClasses = classes
	}
	bot.Goals = make([]models.LearningGoal, 0, len(req.Goals))
	for _, goal := range req.Goals {
		bot.Goals = append(bot.Goals, models.LearningGoal{
			Text:     strings.TrimSpace(goal.Text),
			Keywords: pq.StringArray(goal.Keywords),
		})
	}
	return bot
}
