package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/pkg/config"
)

func TestNewWithoutURLIsNoop(t *testing.T) {
	pub, err := New(config.EventsConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), SubjectSessionStarted, map[string]string{"id": "1"}))
	pub.Close()
}

func TestEncode(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	data, err := Encode(SubjectAttemptsReset, map[string]int{"deleted": 4}, at)
	require.NoError(t, err)

	var env struct {
		Type       string         `json:"type"`
		OccurredAt time.Time      `json:"occurred_at"`
		Data       map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, SubjectAttemptsReset, env.Type)
	assert.True(t, at.Equal(env.OccurredAt))
	assert.Equal(t, 4, env.Data["deleted"])
}

func TestSubjectPrefix(t *testing.T) {
	p := &NATSPublisher{prefix: "qbot"}
	assert.Equal(t, "qbot.sessions.started", p.Subject(SubjectSessionStarted))
	p.prefix = ""
	assert.Equal(t, "sessions.started", p.Subject(SubjectSessionStarted))
}

func TestEncodeRejectsUnsupportedPayload(t *testing.T) {
	_, err := Encode("x", make(chan int), time.Now())
	assert.Error(t, err)
}
