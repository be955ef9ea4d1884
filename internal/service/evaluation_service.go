package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
	"github.com/techkwon/Qbot/pkg/llm"
	"github.com/techkwon/Qbot/pkg/telemetry"
)

// ErrEvaluationPending is returned by EvaluateTarget when the evaluator failed again and the
// goals stay pending.
var ErrEvaluationPending = errors.New("goal evaluation still pending")

const sweepBatchSize = 100

type evaluationRepository interface {
	Upsert(ctx context.Context, rows []models.GoalEvaluation) error
	List(ctx context.Context, chatbotID, studentID string) ([]models.GoalEvaluation, error)
	PendingTargets(ctx context.Context, limit int) ([]models.EvaluationTarget, error)
}

type goalLister interface {
	ListGoals(ctx context.Context, chatbotID string) ([]models.LearningGoal, error)
}

type transcriptReader interface {
	Transcript(ctx context.Context, studentID, chatbotID string) ([]models.ChatMessage, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, teacherID, id string) (*models.StudentDetail, error)
}

// EvaluationScheduler queues a later re-evaluation of a pending target.
type EvaluationScheduler interface {
	ScheduleEvaluation(ctx context.Context, target models.EvaluationTarget) error
}

// EvaluationCompletedEvent is published after verdicts are stored.
type EvaluationCompletedEvent struct {
	StudentID string `json:"student_id"`
	ChatbotID string `json:"chatbot_id"`
	Achieved  int    `json:"achieved"`
	Total     int    `json:"total"`
}

// EvaluationServiceParams groups constructor dependencies.
type EvaluationServiceParams struct {
	Evaluations evaluationRepository
	Goals       goalLister
	Transcripts transcriptReader
	Students    studentFinder
	Ownership   chatbotOwnership
	Evaluator   GoalEvaluator
	Publisher   events.Publisher
	Cache       *CacheService
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// EvaluationService runs LLM goal evaluations and stores the verdicts.
type EvaluationService struct {
	evaluations evaluationRepository
	goals       goalLister
	transcripts transcriptReader
	students    studentFinder
	ownership   chatbotOwnership
	evaluator   GoalEvaluator
	scheduler   EvaluationScheduler
	metrics     *MetricsService
	notifier    notifier
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// NewEvaluationService constructs the service.
func NewEvaluationService(params EvaluationServiceParams) *EvaluationService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		evaluations: params.Evaluations,
		goals:       params.Goals,
		transcripts: params.Transcripts,
		students:    params.Students,
		ownership:   params.Ownership,
		evaluator:   params.Evaluator,
		metrics:     params.Metrics,
		notifier:    newNotifier(params.Publisher, params.Cache, logger),
		validator:   validate,
		tracer:      telemetry.Tracer("qbot/service/evaluation"),
		logger:      logger,
		now:         time.Now,
	}
}

// SetScheduler attaches the background queue used for retries of failed evaluations.
func (s *EvaluationService) SetScheduler(scheduler EvaluationScheduler) {
	s.scheduler = scheduler
}

// Evaluate judges one student's transcript on an owned chatbot. When the evaluator fails after its
// retries the goals are stored as pending, a retry is scheduled and Pending is set on the response.
func (s *EvaluationService) Evaluate(ctx context.Context, teacherID, chatbotID string, req dto.EvaluateRequest) (*dto.EvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}
	if _, err := s.students.FindByID(ctx, teacherID, req.StudentID); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, storeError(err, "failed to load student")
	}

	target := models.EvaluationTarget{StudentID: req.StudentID, ChatbotID: config.ID}
	pending, err := s.run(ctx, target)
	if err != nil {
		return nil, err
	}
	if pending && s.scheduler != nil {
		if err := s.scheduler.ScheduleEvaluation(ctx, target); err != nil {
			s.logger.Warn("failed to schedule evaluation retry", zap.String("student_id", target.StudentID), zap.String("chatbot_id", target.ChatbotID), zap.Error(err))
		}
	}

	results, err := s.evaluations.List(ctx, target.ChatbotID, target.StudentID)
	if err != nil {
		return nil, storeError(err, "failed to load evaluations")
	}
	if results == nil {
		results = []models.GoalEvaluation{}
	}
	return &dto.EvaluationResponse{StudentID: target.StudentID, ChatbotID: target.ChatbotID, Pending: pending, Results: results}, nil
}

// EvaluateTarget re-runs a pending evaluation. It returns ErrEvaluationPending when it failed again.
func (s *EvaluationService) EvaluateTarget(ctx context.Context, target models.EvaluationTarget) error {
	pending, err := s.run(ctx, target)
	if err != nil {
		return err
	}
	if pending {
		return ErrEvaluationPending
	}
	return nil
}

// SweepPending re-evaluates every pair that still has pending goals and reports how many completed.
func (s *EvaluationService) SweepPending(ctx context.Context) (int, error) {
	targets, err := s.evaluations.PendingTargets(ctx, sweepBatchSize)
	if err != nil {
		return 0, storeError(err, "failed to list pending evaluations")
	}
	completed := 0
	for _, target := range targets {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if err := s.EvaluateTarget(ctx, target); err != nil {
			s.logger.Warn("pending evaluation still failing", zap.String("student_id", target.StudentID), zap.String("chatbot_id", target.ChatbotID), zap.Error(err))
			continue
		}
		completed++
	}
	if len(targets) > 0 {
		s.logger.Info("pending evaluation sweep finished", zap.Int("targets", len(targets)), zap.Int("completed", completed))
	}
	return completed, nil
}

// ListResults returns stored verdicts on an owned chatbot, optionally for one student.
func (s *EvaluationService) ListResults(ctx context.Context, teacherID, chatbotID, studentID string) ([]models.GoalEvaluation, error) {
	if studentID != "" && !validUUID(studentID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId must be a uuid")
	}
	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, err
	}
	results, err := s.evaluations.List(ctx, config.ID, studentID)
	if err != nil {
		return nil, storeError(err, "failed to load evaluations")
	}
	if results == nil {
		results = []models.GoalEvaluation{}
	}
	return results, nil
}

// run evaluates and stores verdicts. It reports pending=true when the evaluator failed.
func (s *EvaluationService) run(ctx context.Context, target models.EvaluationTarget) (pending bool, err error) {
	goals, err := s.goals.ListGoals(ctx, target.ChatbotID)
	if err != nil {
		return false, storeError(err, "failed to load goals")
	}
	if len(goals) == 0 {
		return false, nil
	}
	transcript, err := s.transcripts.Transcript(ctx, target.StudentID, target.ChatbotID)
	if err != nil {
		return false, storeError(err, "failed to load transcript")
	}
	if len(transcript) == 0 {
		return false, appErrors.Clone(appErrors.ErrValidation, "student has no conversation with this chatbot")
	}

	start := s.now()
	verdicts, evalErr := s.evaluate(ctx, target, transcript, goals)
	evaluatedAt := s.now().UTC()

	rows := make([]models.GoalEvaluation, 0, len(goals))
	if evalErr != nil {
		s.logger.Warn("goal evaluation failed, storing as pending",
			zap.String("student_id", target.StudentID),
			zap.String("chatbot_id", target.ChatbotID),
			zap.Bool("timeout", errors.Is(evalErr, llm.ErrTimeout) || errors.Is(evalErr, context.DeadlineExceeded)),
			zap.Error(evalErr),
		)
		for _, goal := range goals {
			rows = append(rows, models.GoalEvaluation{
				StudentID:   target.StudentID,
				ChatbotID:   target.ChatbotID,
				GoalID:      goal.ID,
				Status:      models.EvaluationPending,
				EvaluatedAt: evaluatedAt,
			})
		}
	} else {
		for _, v := range verdicts {
			rows = append(rows, models.GoalEvaluation{
				StudentID:   target.StudentID,
				ChatbotID:   target.ChatbotID,
				GoalID:      v.GoalID,
				Achieved:    v.Achieved,
				Reason:      v.Reason,
				Status:      models.EvaluationCompleted,
				EvaluatedAt: evaluatedAt,
			})
		}
	}

	// The request context may already be spent on a timed out evaluator.
	storeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := s.evaluations.Upsert(storeCtx, rows); err != nil {
		return false, storeError(err, "failed to store evaluations")
	}

	if evalErr != nil {
		s.metrics.ObserveEvaluation(string(models.EvaluationPending), time.Since(start))
		return true, nil
	}

	s.metrics.ObserveEvaluation(string(models.EvaluationCompleted), time.Since(start))
	achieved := 0
	for _, v := range verdicts {
		if v.Achieved {
			achieved++
		}
	}
	s.notifier.publish(ctx, events.SubjectEvaluationFinished, EvaluationCompletedEvent{
		StudentID: target.StudentID,
		ChatbotID: target.ChatbotID,
		Achieved:  achieved,
		Total:     len(verdicts),
	})
	s.notifier.invalidateDashboard(ctx, target.ChatbotID)
	return false, nil
}

func (s *EvaluationService) evaluate(ctx context.Context, target models.EvaluationTarget, transcript []models.ChatMessage, goals []models.LearningGoal) ([]models.GoalVerdict, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.Evaluate", trace.WithAttributes(
		attribute.String("chatbot.id", target.ChatbotID),
		attribute.Int("goals", len(goals)),
		attribute.Int("messages", len(transcript)),
	))
	defer span.End()

	verdicts, err := s.evaluator.Evaluate(ctx, transcript, goals)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return nil, err
	}
	return verdicts, nil
}
