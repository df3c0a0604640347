package model

import "time"

// SessionStatus is the lifecycle state of a redemption session.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionApproved SessionStatus = "approved"
	SessionRejected SessionStatus = "rejected"
	SessionExpired  SessionStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionApproved || s == SessionRejected || s == SessionExpired
}

// RedemptionSession is a shop-initiated request for a customer to authorize
// spending up to MaxAmount. MaxAmount is fixed at creation.
type RedemptionSession struct {
	SessionID       string        `json:"session_id"`
	ShopID          string        `json:"shop_id"`
	CustomerAddress string        `json:"customer_address"`
	RequestedAmount int64         `json:"requested_amount"`
	MaxAmount       int64         `json:"max_amount"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
}

// ExpiredAt reports whether the session can no longer be approved at now.
func (s *RedemptionSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CreateSessionRequest is the DTO for creating a redemption session
type CreateSessionRequest struct {
	ShopID          string `json:"shop_id" validate:"required,notblank,max=64"`
	CustomerAddress string `json:"customer_address" validate:"required,rcnaddr"`
	Amount          *int64 `json:"amount" validate:"required,gte=1"`
}

// ApproveSessionRequest is the DTO for approving a redemption session
type ApproveSessionRequest struct {
	Signature string `json:"signature" validate:"required,notblank,max=140"`
}

// RejectSessionRequest is the optional DTO for rejecting a redemption session
type RejectSessionRequest struct {
	Signature string `json:"signature" validate:"omitempty,notblank,max=140"`
}

// ApproveResult is returned when a session is approved and the ledger debited.
type ApproveResult struct {
	SessionID     string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	AmountDebited int64         `json:"amount_debited"`
}

// RejectResult is returned when a session is rejected.
type RejectResult struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
}
