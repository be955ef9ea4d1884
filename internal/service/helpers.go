package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/events"
)

// storeError converts a repository failure. The database is an upstream dependency:
// deadlines surface as UPSTREAM_TIMEOUT (504), everything else as UPSTREAM_FAILURE (502).
func storeError(err error, message string) error {
	return appErrors.Upstream(err, message)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func dashboardCacheKey(chatbotID string) string {
	return fmt.Sprintf("dashboard:chatbot:%s", chatbotID)
}

// notifier fans domain side effects out after a committed write. Failures are logged only.
type notifier struct {
	events events.Publisher
	cache  *CacheService
	logger *zap.Logger
}

func newNotifier(publisher events.Publisher, cache *CacheService, logger *zap.Logger) notifier {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return notifier{events: publisher, cache: cache, logger: logger}
}

func (n notifier) publish(ctx context.Context, subject string, payload interface{}) {
	if err := n.events.Publish(ctx, subject, payload); err != nil {
		n.logger.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (n notifier) invalidateDashboard(ctx context.Context, chatbotID string) {
	if err := n.cache.Invalidate(ctx, dashboardCacheKey(chatbotID)); err != nil {
		n.logger.Warn("dashboard cache invalidation failed", zap.String("chatbot_id", chatbotID), zap.Error(err))
	}
}
