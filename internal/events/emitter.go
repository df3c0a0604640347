// Package events delivers settlement facts to downstream consumers.
//
// Services hand committed events to an Emitter, which queues them on a
// bounded channel and returns immediately. A single dispatcher goroutine
// drains the queue into a Publisher. When the queue is full the event is
// dropped, logged and counted; the ledger write it describes has already
// committed and stays the source of truth.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

const publishTimeout = 5 * time.Second

// Publisher delivers one encoded event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error
	Close() error
}

// Metrics records delivery outcomes per event type.
type Metrics interface {
	EventPublished(eventType string)
	EventDropped(eventType string)
	EventFailed(eventType string)
}

type noopMetrics struct{}

func (noopMetrics) EventPublished(string) {}
func (noopMetrics) EventDropped(string)   {}
func (noopMetrics) EventFailed(string)    {}

type envelope struct {
	event         model.DomainEvent
	correlationID string
}

// Emitter queues events for asynchronous publication.
type Emitter struct {
	publisher Publisher
	source    string
	metrics   Metrics
	queue     chan envelope

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewEmitter creates an Emitter with a queue of bufferSize events.
// Call Start to begin publishing.
func NewEmitter(publisher Publisher, bufferSize int, source string) *Emitter {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Emitter{
		publisher: publisher,
		source:    source,
		metrics:   noopMetrics{},
		queue:     make(chan envelope, bufferSize),
		done:      make(chan struct{}),
	}
}

// WithMetrics sets the metrics recorder.
func (e *Emitter) WithMetrics(m Metrics) *Emitter {
	if m != nil {
		e.metrics = m
	}
	return e
}

// Start launches the dispatcher goroutine. Calling it more than once has no effect.
func (e *Emitter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
}

// Emit queues event without blocking. The source is stamped if unset and the
// correlation id is taken from ctx.
func (e *Emitter) Emit(ctx context.Context, event model.DomainEvent) {
	if event.Source == "" {
		event.Source = e.source
	}
	env := envelope{event: event, correlationID: CorrelationID(ctx)}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(env, "emitter closed")
		return
	}
	select {
	case e.queue <- env:
	default:
		e.drop(env, "event queue full")
	}
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to be done. It then closes the publisher.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	close(e.queue)
	e.mu.Unlock()

	if started {
		select {
		case <-e.done:
		case <-ctx.Done():
			log.Warn().Int("pending", len(e.queue)).Msg("Event queue not drained before shutdown")
			return ctx.Err()
		}
	}
	return e.publisher.Close()
}

func (e *Emitter) run() {
	defer close(e.done)
	for env := range e.queue {
		e.publish(env)
	}
}

func (e *Emitter) publish(env envelope) {
	eventType := string(env.event.Type)
	body, err := json.Marshal(env.event)
	if err != nil {
		e.metrics.EventFailed(eventType)
		log.Error().Err(err).Str("event_id", env.event.ID).Msg("Failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, eventType, body, env.correlationID); err != nil {
		e.metrics.EventFailed(eventType)
		log.Error().
			Err(err).
			Str("event_id", env.event.ID).
			Str("type", eventType).
			Str("aggregate_id", env.event.AggregateID).
			Msg("Failed to publish event")
		return
	}
	e.metrics.EventPublished(eventType)
}

func (e *Emitter) drop(env envelope, reason string) {
	e.metrics.EventDropped(string(env.event.Type))
	log.Warn().
		Str("event_id", env.event.ID).
		Str("type", string(env.event.Type)).
		Str("aggregate_id", env.event.AggregateID).
		Str("reason", reason).
		Msg("Dropping event")
}
