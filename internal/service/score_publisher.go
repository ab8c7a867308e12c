package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/events"
)

type natsScorePublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSScorePublisher builds a score observer that publishes scoring events
// to a NATS subject so downstream consumers (gradebooks, analytics) can react.
func NewNATSScorePublisher(conn *nats.Conn, subject string, logger zerolog.Logger) events.ScoreObserver {
	return &natsScorePublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "score_publisher").Logger(),
	}
}

func (p *natsScorePublisher) OnScoreEvent(_ context.Context, event events.ScoreEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode score event: %w", err)
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("failed to publish score event: %w", err)
	}

	p.logger.Debug().
		Str("event_type", event.Type).
		Str("item_id", event.ItemID).
		Msg("score event published")

	return nil
}
