package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/repository"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
	"github.com/techkwon/Qbot/pkg/telemetry"
)

// UsageGateRepository is the persistence the access gate and attempt resets run on.
// InsertSession must count and insert atomically and return repository.ErrAttemptLimitReached
// when limit no longer permits another attempt.
type UsageGateRepository interface {
	FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	FindChatbotConfig(ctx context.Context, chatbotID string) (*models.ChatbotConfig, error)
	CountSessions(ctx context.Context, studentID, chatbotID string) (int, error)
	InsertSession(ctx context.Context, session *models.UsageSession, limit models.AttemptLimit) (int, error)
	DeleteSessions(ctx context.Context, filter models.ResetFilter) (int64, error)
}

// SessionStartedEvent is published after an accepted start.
type SessionStartedEvent struct {
	SessionID       string `json:"session_id"`
	StudentID       string `json:"student_id"`
	ChatbotID       string `json:"chatbot_id"`
	CurrentAttempts int    `json:"current_attempts"`
	MaxAttempts     *int   `json:"max_attempts"`
}

// GateService decides whether a student may start a chatbot session.
type GateService struct {
	repo     UsageGateRepository
	metrics  *MetricsService
	notifier notifier
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// NewGateService constructs the gate.
func NewGateService(repo UsageGateRepository, publisher events.Publisher, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *GateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateService{
		repo:     repo,
		metrics:  metrics,
		notifier: newNotifier(publisher, cache, logger),
		tracer:   telemetry.Tracer("qbot/service/gate"),
		logger:   logger,
		now:      time.Now,
	}
}

// admission is the outcome of the read-only checks shared by StartSession and Usage.
type admission struct {
	profile *models.StudentProfile
	config  *models.ChatbotConfig
}

// StartSession runs the profile, chatbot, class and quota checks and records exactly one usage
// session when all of them pass.
func (s *GateService) StartSession(ctx context.Context, userID, chatbotID string) (resp *dto.SessionStartResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "gate.StartSession", trace.WithAttributes(attribute.String("chatbot.id", chatbotID)))
	defer func() {
		s.record(span, err)
		span.End()
	}()

	adm, err := s.admit(ctx, userID, chatbotID)
	if err != nil {
		return nil, err
	}

	limit := adm.config.Limit
	if limit.Kind() == models.AttemptsZeroAllowed {
		return nil, appErrors.Clone(appErrors.ErrQuotaExceeded, "this chatbot does not accept attempts")
	}

	session := &models.UsageSession{
		ID:        uuid.NewString(),
		StudentID: adm.profile.ID,
		ChatbotID: adm.config.ID,
		CreatedAt: s.now().UTC(),
	}
	current, err := s.repo.InsertSession(ctx, session, limit)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptLimitReached) {
			return nil, appErrors.Clone(appErrors.ErrQuotaExceeded, "no remaining attempts for this chatbot")
		}
		return nil, storeError(err, "failed to record usage session")
	}

	resp = &dto.SessionStartResponse{
		ID:              session.ID,
		ChatbotID:       session.ChatbotID,
		CurrentAttempts: current,
		MaxAttempts:     limit.Nullable(),
	}

	s.logger.Info("usage session started",
		zap.String("session_id", session.ID),
		zap.String("student_id", session.StudentID),
		zap.String("chatbot_id", session.ChatbotID),
		zap.Int("current_attempts", current),
		zap.Stringer("limit", limit),
	)
	s.notifier.publish(ctx, events.SubjectSessionStarted, SessionStartedEvent{
		SessionID:       session.ID,
		StudentID:       session.StudentID,
		ChatbotID:       session.ChatbotID,
		CurrentAttempts: current,
		MaxAttempts:     resp.MaxAttempts,
	})
	s.notifier.invalidateDashboard(ctx, session.ChatbotID)

	return resp, nil
}

// Usage reports how many attempts a student has used without consuming one.
func (s *GateService) Usage(ctx context.Context, userID, chatbotID string) (*dto.UsageStatusResponse, error) {
	adm, err := s.admit(ctx, userID, chatbotID)
	if err != nil {
		return nil, err
	}

	used, err := s.repo.CountSessions(ctx, adm.profile.ID, adm.config.ID)
	if err != nil {
		return nil, storeError(err, "failed to count usage sessions")
	}

	limit := adm.config.Limit
	return &dto.UsageStatusResponse{
		ChatbotID:       adm.config.ID,
		CurrentAttempts: used,
		MaxAttempts:     limit.Nullable(),
		Remaining:       limit.Remaining(used),
		Allowed:         limit.Permits(used),
	}, nil
}

// CheckAccess runs the profile, chatbot and class checks only. Quota is not consulted.
func (s *GateService) CheckAccess(ctx context.Context, userID, chatbotID string) error {
	_, err := s.admit(ctx, userID, chatbotID)
	return err
}

func (s *GateService) admit(ctx context.Context, userID, chatbotID string) (*admission, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}

	profile, err := s.repo.FindStudentProfile(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrProfileNotFound, "student profile not found")
		}
		return nil, storeError(err, "failed to load student profile")
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

	if config.Restricted() {
		if !profile.HasClass() {
			return nil, appErrors.Clone(appErrors.ErrClassInfoMissing, "student has no class assignment")
		}
		if !config.AllowsClass(*profile.ClassName) {
			return nil, appErrors.Clone(appErrors.ErrClassNotAllowed, "class is not allowed to use this chatbot")
		}
	}

	return &admission{profile: profile, config: config}, nil
}

func (s *GateService) record(span trace.Span, err error) {
	outcome := gateOutcome(err)
	s.metrics.RecordGateDecision(outcome)
	span.SetAttributes(attribute.String("gate.outcome", outcome))
	if outcome == GateOutcomeError {
		span.SetStatus(codes.Error, err.Error())
	}
}

func gateOutcome(err error) string {
	switch {
	case err == nil:
		return GateOutcomeAllowed
	case errors.Is(err, appErrors.ErrProfileNotFound):
		return GateOutcomeProfileNotFound
	case errors.Is(err, appErrors.ErrChatbotNotFound):
		return GateOutcomeChatbotNotFound
	case errors.Is(err, appErrors.ErrClassInfoMissing):
		return GateOutcomeClassInfoMissing
	case errors.Is(err, appErrors.ErrClassNotAllowed):
		return GateOutcomeClassNotAllowed
	case errors.Is(err, appErrors.ErrQuotaExceeded):
		return GateOutcomeQuotaExceeded
	default:
		return GateOutcomeError
	}
}
