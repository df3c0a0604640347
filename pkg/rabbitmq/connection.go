package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// DialOptions configures Connect.
type DialOptions struct {
	URL         string
	MaxRetries  int
	BaseBackoff time.Duration
}

// Connection wraps an AMQP connection.
type Connection struct {
	conn *amqp.Connection
}

// Connect dials the broker, retrying with exponential backoff until
// MaxRetries attempts fail or ctx is done.
func Connect(ctx context.Context, opts DialOptions) (*Connection, error) {
	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoff := opts.BaseBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err := amqp.Dial(opts.URL)
		if err == nil {
			log.Info().Int("attempt", attempt+1).Msg("Connected to RabbitMQ")
			return &Connection{conn: conn}, nil
		}
		lastErr = err

		if attempt == maxRetries-1 {
			break
		}
		wait := backoff << attempt
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Failed to connect to RabbitMQ, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("could not connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}

// Channel opens a new AMQP channel.
func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

// Close closes the connection.
func (c *Connection) Close() error {
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

// ErrConnectionClosed is returned by Ping when the broker connection is gone.
var ErrConnectionClosed = errors.New("rabbitmq: connection closed")

// Ping reports whether the connection is still open.
func (c *Connection) Ping(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return ErrConnectionClosed
	}
	return nil
}
