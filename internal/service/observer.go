package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

// EventEmitter receives settlement facts after their transaction committed.
// Emit must not block the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event model.DomainEvent)
}

// Metrics records business outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	RewardIssued(base, bonus int64)
	BonusSkipped()
	LimitRejected(limit string)
	RedemptionResolved(outcome model.SessionStatus)
	SignatureRejected()
	SessionsSwept(n int64)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, model.DomainEvent) {}

type noopMetrics struct{}

func (noopMetrics) RewardIssued(int64, int64)              {}
func (noopMetrics) BonusSkipped()                          {}
func (noopMetrics) LimitRejected(string)                   {}
func (noopMetrics) RedemptionResolved(model.SessionStatus) {}
func (noopMetrics) SignatureRejected()                     {}
func (noopMetrics) SessionsSwept(int64)                    {}

// newEvent builds a domain event. Source is stamped by the emitter.
func newEvent(eventType model.EventType, aggregateID string, at time.Time, data model.EventData) model.DomainEvent {
	return model.DomainEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        data,
		Timestamp:   at,
		Version:     model.EventVersion,
	}
}
