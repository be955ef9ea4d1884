package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
)

type dashboardRepository interface {
	StudentUsage(ctx context.Context, chatbotID string) ([]models.StudentUsage, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the per-chatbot teacher dashboard.
type DashboardService struct {
	repo      dashboardRepository
	goals     goalLister
	ownership chatbotOwnership
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
	cfg       DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardRepository, goals goalLister, ownership chatbotOwnership, cache *CacheService, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:      repo,
		goals:     goals,
		ownership: ownership,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// ChatbotSummary returns usage and goal achievement for an owned chatbot and indicates cache utilisation.
func (s *DashboardService) ChatbotSummary(ctx context.Context, teacherID, chatbotID string) (*dto.ChatbotSummaryResponse, bool, error) {
	config, err := s.ownership.AssertOwnsChatbot(ctx, teacherID, chatbotID)
	if err != nil {
		return nil, false, err
	}

	cacheKey := dashboardCacheKey(config.ID)
	if summary, hit := s.tryCache(ctx, cacheKey); hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx, config)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, cacheKey, summary)
	return summary, false, nil
}

func (s *DashboardService) compose(ctx context.Context, config *models.ChatbotConfig) (*dto.ChatbotSummaryResponse, error) {
	goals, err := s.goals.ListGoals(ctx, config.ID)
	if err != nil {
		return nil, storeError(err, "failed to load learning goals")
	}
	students, err := s.repo.StudentUsage(ctx, config.ID)
	if err != nil {
		return nil, storeError(err, "failed to load student usage")
	}
	if students == nil {
		students = []models.StudentUsage{}
	}

	summary := &dto.ChatbotSummaryResponse{
		ChatbotID:   config.ID,
		ChatbotName: config.Name,
		MaxAttempts: config.Limit.Nullable(),
		GoalCount:   len(goals),
		Students:    students,
		GeneratedAt: s.now().UTC(),
	}

	var achieved, possible int
	for _, student := range students {
		if student.Attempts == 0 {
			continue
		}
		summary.TotalSessions += student.Attempts
		summary.DistinctStudents++
		achieved += student.GoalsAchieved
		possible += len(goals)
	}
	if possible > 0 {
		summary.AchievementRate = float64(achieved) / float64(possible) * 100
	}
	return summary, nil
}

func (s *DashboardService) tryCache(ctx context.Context, key string) (*dto.ChatbotSummaryResponse, bool) {
	var cached dto.ChatbotSummaryResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
