package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogPublisher writes events to the log instead of a broker.
// It is used when no broker URL is configured.
type LogPublisher struct{}

// Publish logs the event body.
func (LogPublisher) Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error {
	log.Info().
		Str("routing_key", routingKey).
		Str("correlation_id", correlationID).
		RawJSON("event", body).
		Msg("Event emitted")
	return nil
}

// Close is a no-op.
func (LogPublisher) Close() error { return nil }
