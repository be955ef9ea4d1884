package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
	"github.com/techkwon/Qbot/pkg/llm"
)

type memoryEvaluationRepo struct {
	mu   sync.Mutex
	rows map[string]models.GoalEvaluation
}

func newMemoryEvaluationRepo() *memoryEvaluationRepo {
	return &memoryEvaluationRepo{rows: map[string]models.GoalEvaluation{}}
}

func (m *memoryEvaluationRepo) Upsert(ctx context.Context, rows []models.GoalEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		key := row.StudentID + "|" + row.ChatbotID + "|" + row.GoalID
		if existing, ok := m.rows[key]; ok && row.Status == models.EvaluationPending {
			row.Achieved = existing.Achieved
			row.Reason = existing.Reason
		}
		m.rows[key] = row
	}
	return nil
}

func (m *memoryEvaluationRepo) List(ctx context.Context, chatbotID, studentID string) ([]models.GoalEvaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GoalEvaluation
	for _, goal := range sampleGoals() {
		row, ok := m.rows[studentID+"|"+chatbotID+"|"+goal.ID]
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryEvaluationRepo) PendingTargets(ctx context.Context, limit int) ([]models.EvaluationTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[models.EvaluationTarget]bool{}
	var out []models.EvaluationTarget
	for _, row := range m.rows {
		target := models.EvaluationTarget{StudentID: row.StudentID, ChatbotID: row.ChatbotID}
		if row.Status == models.EvaluationPending && !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}
	return out, nil
}

type staticGoals []models.LearningGoal

func (g staticGoals) ListGoals(ctx context.Context, chatbotID string) ([]models.LearningGoal, error) {
	return g, nil
}

type staticStudents map[string]string

func (s staticStudents) FindByID(ctx context.Context, teacherID, id string) (*models.StudentDetail, error) {
	if s[id] != teacherID {
		return nil, sql.ErrNoRows
	}
	return &models.StudentDetail{Student: models.Student{ID: id, TeacherID: teacherID}}, nil
}

type scriptedEvaluator struct {
	mu       sync.Mutex
	failures int
	calls    int
	err      error
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, transcript []models.ChatMessage, goals []models.LearningGoal) ([]models.GoalVerdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failures {
		return nil, e.err
	}
	verdicts := make([]models.GoalVerdict, 0, len(goals))
	for i, goal := range goals {
		verdicts = append(verdicts, models.GoalVerdict{GoalID: goal.ID, Achieved: i == 0, Reason: fmt.Sprintf("call %d", e.calls)})
	}
	return verdicts, nil
}

type recordingScheduler struct {
	targets []models.EvaluationTarget
}

func (r *recordingScheduler) ScheduleEvaluation(ctx context.Context, target models.EvaluationTarget) error {
	r.targets = append(r.targets, target)
	return nil
}

type evaluationFixture struct {
	svc       *EvaluationService
	repo      *memoryEvaluationRepo
	messages  *memoryMessageRepo
	evaluator *scriptedEvaluator
	scheduler *recordingScheduler
	publisher *recordingPublisher
}

func newEvaluationFixture(goals []models.LearningGoal) *evaluationFixture {
	gateRepo := newMemoryGateRepo()
	gateRepo.addChatbot(gateChatbotID, nil, models.Unlimited())
	f := &evaluationFixture{
		repo: newMemoryEvaluationRepo(),
		messages: &memoryMessageRepo{messages: []models.ChatMessage{
			{StudentID: studentOneID, ChatbotID: gateChatbotID, Role: models.MessageRoleUser, Content: "light and chlorophyll"},
		}},
		evaluator: &scriptedEvaluator{err: fmt.Errorf("%w: deadline", llm.ErrTimeout)},
		scheduler: &recordingScheduler{},
		publisher: &recordingPublisher{},
	}
	f.svc = NewEvaluationService(EvaluationServiceParams{
		Evaluations: f.repo,
		Goals:       staticGoals(goals),
		Transcripts: f.messages,
		Students:    staticStudents{studentOneID: gateTeacherID, studentTwoID: gateTeacherID},
		Ownership:   NewAttemptService(gateRepo, nil, nil, nil, nil, nil),
		Evaluator:   f.evaluator,
		Publisher:   f.publisher,
	})
	f.svc.SetScheduler(f.scheduler)
	return f
}

func TestEvaluationServiceStoresVerdicts(t *testing.T) {
	f := newEvaluationFixture(sampleGoals())

	resp, err := f.svc.Evaluate(context.Background(), gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)
	assert.False(t, resp.Pending)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, models.EvaluationCompleted, resp.Results[0].Status)
	assert.True(t, resp.Results[0].Achieved)
	assert.False(t, resp.Results[1].Achieved)
	assert.Empty(t, f.scheduler.targets)
	assert.Equal(t, []string{events.SubjectEvaluationFinished}, f.publisher.subjects)
}

func TestEvaluationServiceSecondRunOverwrites(t *testing.T) {
	f := newEvaluationFixture(sampleGoals())
	ctx := context.Background()

	_, err := f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)
	resp, err := f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "call 2", resp.Results[0].Reason)
	assert.Len(t, f.repo.rows, 2)
}

func TestEvaluationServiceFailureStoresPendingAndSchedulesRetry(t *testing.T) {
	f := newEvaluationFixture(sampleGoals())
	ctx := context.Background()

	_, err := f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)

	f.evaluator.failures = f.evaluator.calls + 1
	resp, err := f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)
	assert.True(t, resp.Pending)
	require.Len(t, resp.Results, 2)
	for _, row := range resp.Results {
		assert.Equal(t, models.EvaluationPending, row.Status)
	}
	assert.True(t, resp.Results[0].Achieved, "previous verdict stays readable while pending")
	require.Len(t, f.scheduler.targets, 1)
	assert.Equal(t, models.EvaluationTarget{StudentID: studentOneID, ChatbotID: gateChatbotID}, f.scheduler.targets[0])

	completed, err := f.svc.SweepPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	results, err := f.svc.ListResults(ctx, gateTeacherID, gateChatbotID, studentOneID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationCompleted, results[0].Status)
}

func TestEvaluationServiceEvaluateTargetReportsPending(t *testing.T) {
	f := newEvaluationFixture(sampleGoals())
	f.evaluator.failures = 10
	target := models.EvaluationTarget{StudentID: studentOneID, ChatbotID: gateChatbotID}

	err := f.svc.EvaluateTarget(context.Background(), target)
	assert.True(t, errors.Is(err, ErrEvaluationPending))
	assert.Empty(t, f.scheduler.targets)

	completed, err := f.svc.SweepPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
}

func TestEvaluationServiceEdgeCases(t *testing.T) {
	f := newEvaluationFixture(nil)
	ctx := context.Background()

	resp, err := f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, f.evaluator.calls)

	f = newEvaluationFixture(sampleGoals())
	_, err = f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: studentTwoID})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err), "no transcript")

	_, err = f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: "5d1a1f0e-7c39-4a3f-9d8b-999999999999"})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	_, err = f.svc.Evaluate(ctx, "teacher-2", gateChatbotID, dto.EvaluateRequest{StudentID: studentOneID})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = f.svc.Evaluate(ctx, gateTeacherID, gateChatbotID, dto.EvaluateRequest{StudentID: "nope"})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}
