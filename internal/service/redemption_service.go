package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/reward"
	"github.com/fairyhunter13/rcn-reward-engine/internal/signature"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

// SessionRepositoryInterface defines the interface for redemption session data access.
type SessionRepositoryInterface interface {
	Insert(ctx context.Context, s *model.RedemptionSession) error
	GetByID(ctx context.Context, sessionID string) (*model.RedemptionSession, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, sessionID string) (*model.RedemptionSession, error)
	Transition(ctx context.Context, tx database.TxQuerier, sessionID string, from, to model.SessionStatus, at time.Time) error
	ListPendingByCustomer(ctx context.Context, address string, now time.Time) ([]model.RedemptionSession, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SignatureVerifier checks that a signature over payload was made by expectedSigner.
type SignatureVerifier interface {
	Verify(payload signature.Payload, sig []byte, expectedSigner string) error
}

// RedemptionConfig holds the redemption rules the service enforces.
// With RequireSignedReject unset, a rejection signature is checked only when given.
type RedemptionConfig struct {
	SessionTTL          time.Duration
	CrossShopPercent    int64
	RequireSignedReject bool
}

// RedemptionService runs the two-party redemption protocol: a shop opens a
// session, the customer approves it with a signature or rejects it.
type RedemptionService struct {
	pool      TxBeginner
	customers CustomerRepositoryInterface
	shops     ShopRepositoryInterface
	sessions  SessionRepositoryInterface
	ledger    LedgerRepositoryInterface
	verifier  SignatureVerifier
	emitter   EventEmitter
	metrics   Metrics
	cfg       RedemptionConfig
	now       func() time.Time
}

// NewRedemptionService creates a new RedemptionService with the given pool and repositories.
func NewRedemptionService(pool *pgxpool.Pool, customers CustomerRepositoryInterface, shops ShopRepositoryInterface, sessions SessionRepositoryInterface, ledger LedgerRepositoryInterface, verifier SignatureVerifier, cfg RedemptionConfig) *RedemptionService {
	return NewRedemptionServiceWithTxBeginner(pool, customers, shops, sessions, ledger, verifier, cfg)
}

// NewRedemptionServiceWithTxBeginner creates a RedemptionService with a custom TxBeginner.
// Primarily used for testing.
func NewRedemptionServiceWithTxBeginner(pool TxBeginner, customers CustomerRepositoryInterface, shops ShopRepositoryInterface, sessions SessionRepositoryInterface, ledger LedgerRepositoryInterface, verifier SignatureVerifier, cfg RedemptionConfig) *RedemptionService {
	return &RedemptionService{
		pool:      pool,
		customers: customers,
		shops:     shops,
		sessions:  sessions,
		ledger:    ledger,
		verifier:  verifier,
		emitter:   noopEmitter{},
		metrics:   noopMetrics{},
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithEmitter sets the settlement emitter that receives token.redeemed events.
func (s *RedemptionService) WithEmitter(e EventEmitter) *RedemptionService {
	if e != nil {
		s.emitter = e
	}
	return s
}

// WithMetrics sets the metrics recorder.
func (s *RedemptionService) WithMetrics(m Metrics) *RedemptionService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithClock overrides the time source used for expiry decisions.
func (s *RedemptionService) WithClock(now func() time.Time) *RedemptionService {
	s.now = now
	return s
}

// MaxRedeemable returns how much of the customer's balance can be spent at shopID.
// An inactive shop can redeem nothing.
// Returns ErrShopNotFound or ErrCustomerNotFound for unknown parties.
func (s *RedemptionService) MaxRedeemable(ctx context.Context, customerAddress, shopID string) (int64, error) {
	address := NormalizeAddress(customerAddress)
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		return 0, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return 0, ErrShopNotFound
	}
	customer, err := s.customers.GetByAddress(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("get customer: %w", err)
	}
	if customer == nil {
		return 0, ErrCustomerNotFound
	}
	if !shop.Active {
		return 0, nil
	}

	balances, err := s.ledger.GetShopBalances(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("get shop balances: %w", err)
	}
	return reward.MaxRedeemable(balances, shop.ShopID, shop.CrossShopEnabled, s.cfg.CrossShopPercent), nil
}

// CreateSession opens a pending redemption session for the customer to sign.
// The session's MaxAmount is the requested amount capped at what is
// redeemable at the shop right now, and never changes afterwards.
// Returns:
//   - ErrInvalidAmount if requested is not positive or nothing is redeemable
//   - ErrShopNotFound, ErrShopInactive or ErrCustomerNotFound
func (s *RedemptionService) CreateSession(ctx context.Context, shopID, customerAddress string, requested int64) (*model.RedemptionSession, error) {
	if requested <= 0 {
		return nil, ErrInvalidAmount
	}
	address := NormalizeAddress(customerAddress)
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	if shop == nil {
		return nil, ErrShopNotFound
	}
	if !shop.Active {
		return nil, ErrShopInactive
	}

	redeemable, err := s.MaxRedeemable(ctx, address, shopID)
	if err != nil {
		return nil, err
	}
	maxAmount := min(requested, redeemable)
	if maxAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	// Whole seconds so the stored expiry equals the signed one.
	now := s.now().UTC().Truncate(time.Second)
	session := &model.RedemptionSession{
		SessionID:       uuid.NewString(),
		ShopID:          shop.ShopID,
		CustomerAddress: address,
		RequestedAmount: requested,
		MaxAmount:       maxAmount,
		Status:          model.SessionPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, ErrInvalidRequest
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	log.Info().
		Str("session_id", session.SessionID).
		Str("shop_id", session.ShopID).
		Str("customer", address).
		Int64("max_amount", maxAmount).
		Msg("Redemption session created")

	return session, nil
}

// Approve debits the customer for a pending session whose signature checks out.
// The session row lock serialises concurrent approve and reject calls, so a
// session is debited at most once.
// Returns:
//   - ErrSessionNotFound if the session doesn't exist
//   - ErrInvalidSessionState if the session is no longer pending
//   - ErrSessionExpired if the session expired (it is marked expired)
//   - ErrSignatureInvalid if the signature is not the customer's (nothing changes)
//   - ErrInsufficientBalance if the balance no longer covers MaxAmount (session stays pending)
func (s *RedemptionService) Approve(ctx context.Context, sessionID, sig string) (*model.ApproveResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := s.lockPending(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if session.ExpiredAt(now) {
		return nil, s.expire(ctx, tx, session, now)
	}

	if err := s.verifySignature(session, signature.ActionApprove, sig); err != nil {
		return nil, err
	}

	// Lock order: session, customer, shop.
	if _, err := s.customers.GetForUpdate(ctx, tx, session.CustomerAddress); err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer for update: %w", err)
	}
	shop, err := s.shops.GetForUpdate(ctx, tx, session.ShopID)
	if err != nil {
		if errors.Is(err, ErrShopNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop for update: %w", err)
	}
	if !shop.Active {
		return nil, ErrShopInactive
	}

	// The customer lock covers the attributed balances, so the cross-shop
	// allowance read here cannot be spent by a concurrent approval.
	balances, err := s.ledger.GetShopBalancesTx(ctx, tx, session.CustomerAddress)
	if err != nil {
		return nil, fmt.Errorf("get shop balances: %w", err)
	}
	available := reward.MaxRedeemable(balances, shop.ShopID, shop.CrossShopEnabled, s.cfg.CrossShopPercent)
	if available < session.MaxAmount {
		return nil, ErrInsufficientBalance
	}
	plan, ok := reward.PlanDebit(balances, shop.ShopID, session.MaxAmount, shop.CrossShopEnabled, s.cfg.CrossShopPercent)
	if !ok {
		return nil, ErrInsufficientBalance
	}

	if err := s.customers.ApplyDebit(ctx, tx, session.CustomerAddress, session.MaxAmount); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit customer: %w", err)
	}
	for _, p := range plan {
		if err := s.ledger.DebitShopBalance(ctx, tx, session.CustomerAddress, p.ShopID, p.Amount, p.CrossShop); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return nil, ErrInsufficientBalance
			}
			return nil, fmt.Errorf("debit shop balance %s: %w", p.ShopID, err)
		}
	}
	if err := s.shops.RecordRedemption(ctx, tx, shop.ShopID, session.MaxAmount); err != nil {
		return nil, fmt.Errorf("record redemption: %w", err)
	}

	sessionRef := session.SessionID
	if err := s.ledger.InsertTransaction(ctx, tx, &model.LedgerTransaction{
		ID:              uuid.NewString(),
		Type:            model.TransactionRedeem,
		CustomerAddress: session.CustomerAddress,
		ShopID:          shop.ShopID,
		Amount:          session.MaxAmount,
		SessionID:       &sessionRef,
		CreatedAt:       now,
	}); err != nil {
		if errors.Is(err, ErrInvalidSessionState) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("insert redeem transaction: %w", err)
	}

	if err := s.sessions.Transition(ctx, tx, session.SessionID, model.SessionPending, model.SessionApproved, now); err != nil {
		if errors.Is(err, ErrInvalidSessionState) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("approve session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.metrics.RedemptionResolved(model.SessionApproved)
	s.emitter.Emit(ctx, newEvent(model.EventTokenRedeemed, session.CustomerAddress, now, model.EventData{
		Amount:    session.MaxAmount,
		ShopID:    shop.ShopID,
		Reason:    "redemption",
		SessionID: session.SessionID,
	}))

	log.Info().
		Str("session_id", session.SessionID).
		Str("shop_id", shop.ShopID).
		Str("customer", session.CustomerAddress).
		Int64("amount", session.MaxAmount).
		Msg("Redemption session approved")

	return &model.ApproveResult{
		SessionID:     session.SessionID,
		Status:        model.SessionApproved,
		AmountDebited: session.MaxAmount,
	}, nil
}

// Reject closes a pending session without touching the ledger.
// A non-empty sig must be the customer's signature over the rejection.
// Returns ErrSessionNotFound, ErrInvalidSessionState, ErrSessionExpired or
// ErrSignatureInvalid under the same rules as Approve.
func (s *RedemptionService) Reject(ctx context.Context, sessionID, sig string) (*model.RejectResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := s.lockPending(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if session.ExpiredAt(now) {
		return nil, s.expire(ctx, tx, session, now)
	}
	if sig != "" || s.cfg.RequireSignedReject {
		if err := s.verifySignature(session, signature.ActionReject, sig); err != nil {
			return nil, err
		}
	}

	if err := s.sessions.Transition(ctx, tx, session.SessionID, model.SessionPending, model.SessionRejected, now); err != nil {
		if errors.Is(err, ErrInvalidSessionState) {
			return nil, ErrInvalidSessionState
		}
		return nil, fmt.Errorf("reject session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.metrics.RedemptionResolved(model.SessionRejected)
	log.Info().Str("session_id", session.SessionID).Msg("Redemption session rejected")

	return &model.RejectResult{SessionID: session.SessionID, Status: model.SessionRejected}, nil
}

// GetSession returns a session. A pending session past its expiry is
// reported as expired without being written.
// Returns ErrSessionNotFound if the session doesn't exist.
func (s *RedemptionService) GetSession(ctx context.Context, sessionID string) (*model.RedemptionSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == model.SessionPending && session.ExpiredAt(s.now()) {
		session.Status = model.SessionExpired
	}
	return session, nil
}

// ListPendingSessions returns the customer's sessions still waiting for a signature.
func (s *RedemptionService) ListPendingSessions(ctx context.Context, customerAddress string) ([]model.RedemptionSession, error) {
	sessions, err := s.sessions.ListPendingByCustomer(ctx, NormalizeAddress(customerAddress), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	return sessions, nil
}

// ExpireStaleSessions marks every pending session past its expiry as expired.
func (s *RedemptionService) ExpireStaleSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	if n > 0 {
		s.metrics.SessionsSwept(n)
	}
	return n, nil
}

// lockPending locks the session row and checks that it is still pending.
func (s *RedemptionService) lockPending(ctx context.Context, tx pgx.Tx, sessionID string) (*model.RedemptionSession, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session for update: %w", err)
	}
	if session.Status != model.SessionPending {
		return nil, ErrInvalidSessionState
	}
	return session, nil
}

// expire moves a locked pending session to expired, commits and returns
// ErrSessionExpired so the caller reports the expiry.
func (s *RedemptionService) expire(ctx context.Context, tx pgx.Tx, session *model.RedemptionSession, now time.Time) error {
	if err := s.sessions.Transition(ctx, tx, session.SessionID, model.SessionPending, model.SessionExpired, now); err != nil {
		if errors.Is(err, ErrInvalidSessionState) {
			return ErrInvalidSessionState
		}
		return fmt.Errorf("expire session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.metrics.RedemptionResolved(model.SessionExpired)
	return ErrSessionExpired
}

// verifySignature checks the customer's signature over action on session and
// returns ErrSignatureInvalid if it does not hold.
func (s *RedemptionService) verifySignature(session *model.RedemptionSession, action signature.Action, sig string) error {
	payload := signature.Payload{
		Action:          action,
		SessionID:       session.SessionID,
		CustomerAddress: session.CustomerAddress,
		ShopID:          session.ShopID,
		Amount:          session.MaxAmount,
		ExpiresAt:       session.ExpiresAt,
	}
	raw, err := signature.Decode(sig)
	if err == nil {
		err = s.verifier.Verify(payload, raw, session.CustomerAddress)
	}
	if err != nil {
		s.metrics.SignatureRejected()
		log.Warn().
			Err(err).
			Str("session_id", session.SessionID).
			Str("customer", session.CustomerAddress).
			Str("action", string(action)).
			Msg("Redemption signature rejected")
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}
