package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
)

type mockChatbotRepo struct {
	bots    map[string]*models.Chatbot
	created []*models.Chatbot
	updated []*models.Chatbot
	deleted []string
}

func newMockChatbotRepo(bots ...models.Chatbot) *mockChatbotRepo {
	m := &mockChatbotRepo{bots: map[string]*models.Chatbot{}}
	for i := range bots {
		bot := bots[i]
		m.bots[bot.ID] = &bot
	}
	return m
}

func (m *mockChatbotRepo) FindByID(ctx context.Context, id string) (*models.Chatbot, error) {
	bot, ok := m.bots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return bot, nil
}

func (m *mockChatbotRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.Chatbot, error) {
	var out []models.Chatbot
	for _, bot := range m.bots {
		if bot.TeacherID == teacherID {
			out = append(out, *bot)
		}
	}
	return out, nil
}

func (m *mockChatbotRepo) Create(ctx context.Context, bot *models.Chatbot) error {
	bot.ID = gateChatbotID
	m.created = append(m.created, bot)
	m.bots[bot.ID] = bot
	return nil
}

func (m *mockChatbotRepo) Update(ctx context.Context, bot *models.Chatbot) error {
	if _, ok := m.bots[bot.ID]; !ok {
		return sql.ErrNoRows
	}
	m.updated = append(m.updated, bot)
	m.bots[bot.ID] = bot
	return nil
}

func (m *mockChatbotRepo) Delete(ctx context.Context, teacherID, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.bots, id)
	return nil
}

type fakeUsageReader struct {
	*memoryGateRepo
}

func (f fakeUsageReader) CountByStudent(ctx context.Context, studentID string) (map[string]int, error) {
	counts := map[string]int{}
	for _, s := range f.sessions {
		if s.StudentID == studentID {
			counts[s.ChatbotID]++
		}
	}
	return counts, nil
}

func intPtr(v int) *int { return &v }

func TestChatbotServiceCreateNormalisesInput(t *testing.T) {
	repo := newMockChatbotRepo()
	svc := NewChatbotService(repo, nil, nil, nil, nil, nil)

	bot, err := svc.Create(context.Background(), gateTeacherID, dto.CreateChatbotRequest{
		Name:           "  Photosynthesis ",
		AllowedClasses: []string{" 3-1", "3-2 "},
		MaxAttempts:    intPtr(3),
		Goals: []dto.GoalInput{
			{Text: "Explain chlorophyll", Keywords: []string{"chlorophyll"}},
			{Text: "Name the products"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis", bot.Name)
	assert.Equal(t, []string{"3-1", "3-2"}, []string(bot.AllowedClasses))
	assert.Equal(t, gateTeacherID, bot.TeacherID)
	require.Len(t, bot.Goals, 2)
	assert.Equal(t, models.Limited(3), bot.Config().Limit)
}

func TestChatbotServiceCreateRejectsNegativeLimit(t *testing.T) {
	svc := NewChatbotService(newMockChatbotRepo(), nil, nil, nil, nil, nil)
	_, err := svc.Create(context.Background(), gateTeacherID, dto.CreateChatbotRequest{Name: "x", MaxAttempts: intPtr(-1)})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestChatbotServiceUpdateRequiresOwnership(t *testing.T) {
	gateRepo := newMemoryGateRepo()
	gateRepo.addChatbot(gateChatbotID, nil, models.Unlimited())
	repo := newMockChatbotRepo(models.Chatbot{ID: gateChatbotID, TeacherID: gateTeacherID, Name: "old"})
	attempts := NewAttemptService(gateRepo, nil, nil, nil, nil, nil)
	svc := NewChatbotService(repo, nil, attempts, nil, nil, nil)

	_, err := svc.Update(context.Background(), "teacher-2", gateChatbotID, dto.UpdateChatbotRequest{Name: "new"})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
	assert.Empty(t, repo.updated)

	bot, err := svc.Update(context.Background(), gateTeacherID, gateChatbotID, dto.UpdateChatbotRequest{Name: "new", MaxAttempts: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, "new", bot.Name)
	assert.Nil(t, bot.AllowedClasses)
	assert.Equal(t, models.ZeroAllowed(), bot.Config().Limit)

	err = svc.Delete(context.Background(), "teacher-2", gateChatbotID)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
	require.NoError(t, svc.Delete(context.Background(), gateTeacherID, gateChatbotID))
	assert.Equal(t, []string{gateChatbotID}, repo.deleted)
}

func TestChatbotServiceListForStudent(t *testing.T) {
	gateRepo := newMemoryGateRepo()
	gateRepo.addStudent("user-1", studentOneID, "3-1")
	gateRepo.seedSessions(studentOneID, gateChatbotID, 1)

	repo := newMockChatbotRepo(
		models.Chatbot{ID: gateChatbotID, TeacherID: gateTeacherID, Name: "open", MaxAttempts: intPtr(2)},
		models.Chatbot{ID: otherChatbot, TeacherID: gateTeacherID, Name: "restricted", AllowedClasses: []string{"3-2"}},
		models.Chatbot{ID: "c0ffee00-0000-4000-8000-000000000000", TeacherID: "teacher-2", Name: "foreign"},
	)
	svc := NewChatbotService(repo, fakeUsageReader{gateRepo}, nil, nil, nil, nil)

	list, err := svc.ListForStudent(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "open", list[0].Name)
	assert.Equal(t, 1, list[0].CurrentAttempts)
	require.NotNil(t, list[0].Remaining)
	assert.Equal(t, 1, *list[0].Remaining)

	_, err = svc.ListForStudent(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrProfileNotFound.Code, errorCode(err))
}
