package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/techkwon/Qbot/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "qbot")
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "dashboard:chatbot:bot-1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "dashboard:chatbot:bot-1", map[string]int{"a": 1}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "dashboard:chatbot:bot-1"))
}

func TestCacheRepositoryNamespacesKeys(t *testing.T) {
	assert.Equal(t, "qbot:dashboard:chatbot:bot-1", NewCacheRepository(nil, "qbot").key("dashboard:chatbot:bot-1"))
	assert.Equal(t, "dashboard:chatbot:bot-1", NewCacheRepository(nil, "").key("dashboard:chatbot:bot-1"))
}
