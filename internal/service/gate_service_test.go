package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/repository"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
)

const (
	gateTeacherID = "teacher-1"
	gateChatbotID = "6f1c2a7e-3b8d-4c55-9a21-0d4e5f6a7b8c"
	otherChatbot  = "0b7d9c1e-2f3a-4b5c-8d6e-7f8091a2b3c4"
)

// memoryGateRepo is an in-memory UsageGateRepository. InsertSession holds the mutex across the
// count and the append, which is what the advisory lock gives the Postgres implementation.
type memoryGateRepo struct {
	mu       sync.Mutex
	profiles map[string]*models.StudentProfile
	chatbots map[string]*models.ChatbotConfig
	sessions []models.UsageSession
	err      error
	inserts  int
}

func newMemoryGateRepo() *memoryGateRepo {
	return &memoryGateRepo{
		profiles: map[string]*models.StudentProfile{},
		chatbots: map[string]*models.ChatbotConfig{},
	}
}

func (m *memoryGateRepo) addStudent(userID, studentID, className string) {
	profile := &models.StudentProfile{ID: studentID, UserID: userID, TeacherID: gateTeacherID}
	if className != "" {
		classID := "class-" + className
		name := className
		profile.ClassID = &classID
		profile.ClassName = &name
	}
	m.profiles[userID] = profile
}

func (m *memoryGateRepo) addChatbot(id string, allowed []string, limit models.AttemptLimit) {
	m.chatbots[id] = &models.ChatbotConfig{ID: id, TeacherID: gateTeacherID, Name: "bot", AllowedClasses: allowed, Limit: limit}
}

func (m *memoryGateRepo) seedSessions(studentID, chatbotID string, n int) {
	for i := 0; i < n; i++ {
		m.sessions = append(m.sessions, models.UsageSession{ID: fmt.Sprintf("seed-%d", i), StudentID: studentID, ChatbotID: chatbotID})
	}
}

func (m *memoryGateRepo) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func (m *memoryGateRepo) FindChatbotConfig(ctx context.Context, chatbotID string) (*models.ChatbotConfig, error) {
	cfg, ok := m.chatbots[chatbotID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cfg, nil
}

func (m *memoryGateRepo) CountSessions(ctx context.Context, studentID, chatbotID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(studentID, chatbotID), nil
}

func (m *memoryGateRepo) countLocked(studentID, chatbotID string) int {
	count := 0
	for _, s := range m.sessions {
		if s.StudentID == studentID && s.ChatbotID == chatbotID {
			count++
		}
	}
	return count
}

func (m *memoryGateRepo) InsertSession(ctx context.Context, session *models.UsageSession, limit models.AttemptLimit) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.countLocked(session.StudentID, session.ChatbotID)
	if !limit.Permits(used) {
		return used, repository.ErrAttemptLimitReached
	}
	m.sessions = append(m.sessions, *session)
	m.inserts++
	return used + 1, nil
}

func (m *memoryGateRepo) DeleteSessions(ctx context.Context, filter models.ResetFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bot, ok := m.chatbots[filter.ChatbotID]
	if !ok || bot.TeacherID != filter.TeacherID {
		return 0, nil
	}
	kept := m.sessions[:0]
	var deleted int64
	for _, s := range m.sessions {
		if s.ChatbotID == filter.ChatbotID && m.matchesScope(s.StudentID, filter) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	return deleted, nil
}

func (m *memoryGateRepo) matchesScope(studentID string, filter models.ResetFilter) bool {
	var profile *models.StudentProfile
	for _, p := range m.profiles {
		if p.ID == studentID {
			profile = p
		}
	}
	switch filter.Scope {
	case models.ResetScopeStudent:
		return studentID == filter.StudentID && profile != nil && profile.TeacherID == filter.TeacherID
	case models.ResetScopeClass:
		return profile != nil && profile.TeacherID == filter.TeacherID && profile.ClassName != nil && *profile.ClassName == filter.ClassName
	default:
		return true
	}
}

func (m *memoryGateRepo) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *recordingPublisher) Close() {}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestGateServiceScenarioLastAttemptThenQuota(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, nil, models.Limited(2))
	repo.seedSessions("student-1", gateChatbotID, 1)
	svc := NewGateService(repo, nil, nil, nil, nil)

	resp, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CurrentAttempts)
	require.NotNil(t, resp.MaxAttempts)
	assert.Equal(t, 2, *resp.MaxAttempts)
	assert.Equal(t, gateChatbotID, resp.ChatbotID)
	assert.NotEmpty(t, resp.ID)

	_, err = svc.StartSession(context.Background(), "user-1", gateChatbotID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, errorCode(err))
	assert.Equal(t, 429, appErrors.FromError(err).Status)
	assert.Equal(t, 2, repo.total())
}

func TestGateServiceScenarioClassNotAllowed(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "3-2")
	repo.addChatbot(gateChatbotID, []string{"3-1"}, models.Unlimited())
	svc := NewGateService(repo, nil, nil, nil, nil)

	_, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassNotAllowed.Code, errorCode(err))
	assert.Equal(t, 403, appErrors.FromError(err).Status)
	assert.Zero(t, repo.inserts)
}

func TestGateServiceZeroAllowedAlwaysDenies(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addStudent("user-2", "student-2", "")
	repo.addChatbot(gateChatbotID, nil, models.ZeroAllowed())
	repo.seedSessions("student-2", gateChatbotID, 5)
	svc := NewGateService(repo, nil, nil, nil, nil)

	for _, user := range []string{"user-1", "user-2", "user-1"} {
		_, err := svc.StartSession(context.Background(), user, gateChatbotID)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrQuotaExceeded.Code, errorCode(err))
	}
	assert.Zero(t, repo.inserts)
}

func TestGateServiceUnlimitedCountsEveryCall(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, nil, models.Unlimited())
	svc := NewGateService(repo, nil, nil, nil, nil)

	for i := 1; i <= 1000; i++ {
		resp, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
		require.NoError(t, err)
		require.Equal(t, i, resp.CurrentAttempts)
		require.Nil(t, resp.MaxAttempts)
	}
	assert.Equal(t, 1000, repo.total())
}

func TestGateServiceAllowList(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		class   string
		code    string
	}{
		{name: "open list admits student without class", allowed: nil, class: ""},
		{name: "empty list admits student without class", allowed: []string{}, class: ""},
		{name: "member class passes", allowed: []string{"A"}, class: "A"},
		{name: "other class denied", allowed: []string{"A"}, class: "B", code: appErrors.ErrClassNotAllowed.Code},
		{name: "missing class denied", allowed: []string{"A"}, class: "", code: appErrors.ErrClassInfoMissing.Code},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryGateRepo()
			repo.addStudent("user-1", "student-1", tc.class)
			repo.addChatbot(gateChatbotID, tc.allowed, models.Limited(3))
			svc := NewGateService(repo, nil, nil, nil, nil)

			resp, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
			if tc.code == "" {
				require.NoError(t, err)
				assert.Equal(t, 1, resp.CurrentAttempts)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, errorCode(err))
			assert.Zero(t, repo.inserts)
		})
	}
}

func TestGateServiceDecisionOrder(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, []string{"A"}, models.ZeroAllowed())
	svc := NewGateService(repo, nil, nil, nil, nil)

	_, err := svc.StartSession(context.Background(), "ghost", otherChatbot)
	assert.Equal(t, appErrors.ErrProfileNotFound.Code, errorCode(err))

	_, err = svc.StartSession(context.Background(), "user-1", otherChatbot)
	assert.Equal(t, appErrors.ErrChatbotNotFound.Code, errorCode(err))
	assert.Equal(t, 404, appErrors.FromError(err).Status)

	_, err = svc.StartSession(context.Background(), "user-1", "not-a-uuid")
	assert.Equal(t, appErrors.ErrChatbotNotFound.Code, errorCode(err))

	// class is checked before quota
	_, err = svc.StartSession(context.Background(), "user-1", gateChatbotID)
	assert.Equal(t, appErrors.ErrClassInfoMissing.Code, errorCode(err))

	_, err = svc.StartSession(context.Background(), "", gateChatbotID)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errorCode(err))
	assert.Zero(t, repo.inserts)
}

func TestGateServiceStoreFailures(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.err = errors.New("connection refused")
	svc := NewGateService(repo, nil, nil, nil, nil)

	_, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
	assert.Equal(t, appErrors.ErrUpstreamFailure.Code, errorCode(err))
	assert.Equal(t, 502, appErrors.FromError(err).Status)

	repo.err = fmt.Errorf("find student profile: %w", context.DeadlineExceeded)
	_, err = svc.StartSession(context.Background(), "user-1", gateChatbotID)
	assert.Equal(t, appErrors.ErrUpstreamTimeout.Code, errorCode(err))
	assert.Equal(t, 504, appErrors.FromError(err).Status)
}

func TestGateServiceConcurrentStartsNeverExceedLimit(t *testing.T) {
	const limit = 3
	const callers = 50

	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, nil, models.Limited(limit))
	svc := NewGateService(repo, nil, nil, nil, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		denied  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				allowed++
				return
			}
			if errors.Is(err, appErrors.ErrQuotaExceeded) {
				denied++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, limit, allowed)
	assert.Equal(t, callers-limit, denied)
	assert.Equal(t, limit, repo.total())
}

// racyGateRepo splits the count from the insert the way an unguarded implementation does, and
// holds every caller after its count until all callers have counted.
type racyGateRepo struct {
	*memoryGateRepo
	counted sync.WaitGroup
}

func (r *racyGateRepo) InsertSession(ctx context.Context, session *models.UsageSession, limit models.AttemptLimit) (int, error) {
	used, err := r.CountSessions(ctx, session.StudentID, session.ChatbotID)
	if err != nil {
		return 0, err
	}
	r.counted.Done()
	r.counted.Wait()
	if !limit.Permits(used) {
		return used, repository.ErrAttemptLimitReached
	}
	r.mu.Lock()
	r.sessions = append(r.sessions, *session)
	r.mu.Unlock()
	return used + 1, nil
}

func TestGateServiceUnguardedCountThenInsertOvershoots(t *testing.T) {
	const callers = 5

	repo := &racyGateRepo{memoryGateRepo: newMemoryGateRepo()}
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, nil, models.Limited(1))
	repo.counted.Add(callers)
	svc := NewGateService(repo, nil, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.StartSession(context.Background(), "user-1", gateChatbotID)
		}()
	}
	wg.Wait()

	assert.Equal(t, callers, repo.total(), "every caller saw zero used attempts and inserted")
}

func TestGateServiceSideEffects(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "")
	repo.addChatbot(gateChatbotID, nil, models.Limited(1))
	publisher := &recordingPublisher{err: errors.New("nats down")}
	metrics := NewMetricsService()
	svc := NewGateService(repo, publisher, nil, metrics, nil)

	resp, err := svc.StartSession(context.Background(), "user-1", gateChatbotID)
	require.NoError(t, err, "publish failures do not fail the request")
	_, err = svc.StartSession(context.Background(), "user-1", gateChatbotID)
	require.Error(t, err)

	require.Equal(t, []string{events.SubjectSessionStarted}, publisher.subjects)
	payload, ok := publisher.payloads[0].(SessionStartedEvent)
	require.True(t, ok)
	assert.Equal(t, resp.ID, payload.SessionID)
	assert.Equal(t, "student-1", payload.StudentID)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.gateDecisions.WithLabelValues(GateOutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.gateDecisions.WithLabelValues(GateOutcomeQuotaExceeded)))
}

func TestGateServiceUsage(t *testing.T) {
	repo := newMemoryGateRepo()
	repo.addStudent("user-1", "student-1", "A")
	repo.addChatbot(gateChatbotID, []string{"A"}, models.Limited(3))
	repo.addChatbot(otherChatbot, nil, models.Unlimited())
	repo.seedSessions("student-1", gateChatbotID, 3)
	svc := NewGateService(repo, nil, nil, nil, nil)

	status, err := svc.Usage(context.Background(), "user-1", gateChatbotID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.CurrentAttempts)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, 0, *status.Remaining)
	assert.False(t, status.Allowed)

	status, err = svc.Usage(context.Background(), "user-1", otherChatbot)
	require.NoError(t, err)
	assert.Nil(t, status.MaxAttempts)
	assert.Nil(t, status.Remaining)
	assert.True(t, status.Allowed)
	assert.Equal(t, 3, repo.total())
}

func TestGateOutcome(t *testing.T) {
	assert.Equal(t, GateOutcomeAllowed, gateOutcome(nil))
	assert.Equal(t, GateOutcomeQuotaExceeded, gateOutcome(appErrors.Clone(appErrors.ErrQuotaExceeded, "x")))
	assert.Equal(t, GateOutcomeError, gateOutcome(errors.New("boom")))
}
