package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/pkg/config"
)

// Subjects published by the API, relative to the configured prefix.
const (
	SubjectSessionStarted     = "sessions.started"
	SubjectAttemptsReset      = "attempts.reset"
	SubjectEvaluationFinished = "evaluation.completed"
)

// Envelope wraps every payload so consumers can route on Type without decoding Data.
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher emits domain events. Failures are never fatal to the caller.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
	Close()
}

// NATSPublisher publishes JSON envelopes over core NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// New connects to NATS when cfg.URL is set and falls back to a no-op publisher otherwise.
func New(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return Noop{}, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("qbot-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{conn: conn, prefix: strings.Trim(cfg.SubjectPrefix, "."), logger: logger}, nil
}

// Subject prefixes subject with the configured namespace.
func (p *NATSPublisher) Subject(subject string) string {
	if p.prefix == "" {
		return subject
	}
	return p.prefix + "." + subject
}

// Publish encodes payload inside an Envelope and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(subject, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(subject), data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Encode builds the wire form of an event.
func Encode(subject string, payload interface{}, at time.Time) ([]byte, error) {
	data, err := json.Marshal(Envelope{Type: subject, OccurredAt: at, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", subject, err)
	}
	return data, nil
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }

func (Noop) Close() {}
