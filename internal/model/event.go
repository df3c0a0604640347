package model

import "time"

// EventType is the tag of a domain event on the outbound stream.
type EventType string

const (
	EventTokenMinted   EventType = "token.minted"
	EventTokenRedeemed EventType = "token.redeemed"
)

// EventVersion is the schema version of DomainEvent payloads.
const EventVersion = 1

// DomainEvent is a fact published after a ledger write has committed.
type DomainEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	AggregateID string    `json:"aggregateId"`
	Data        EventData `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Version     int       `json:"version"`
}

// EventData is the payload of token.minted and token.redeemed events.
type EventData struct {
	Amount     int64  `json:"amount"`
	ShopID     string `json:"shopId"`
	Reason     string `json:"reason"`
	BaseReward int64  `json:"baseReward,omitempty"`
	TierBonus  int64  `json:"tierBonus,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
}
