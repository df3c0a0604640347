package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/reward"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

// CustomerRepositoryInterface defines the interface for customer data access.
type CustomerRepositoryInterface interface {
	GetByAddress(ctx context.Context, address string) (*model.Customer, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, address string) (*model.Customer, error)
	ApplyCredit(ctx context.Context, tx database.TxQuerier, address string, amount int64, tier model.Tier, at time.Time) error
	ApplyDebit(ctx context.Context, tx database.TxQuerier, address string, amount int64) error
}

// ShopRepositoryInterface defines the interface for shop data access.
type ShopRepositoryInterface interface {
	GetByID(ctx context.Context, shopID string) (*model.Shop, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, shopID string) (*model.Shop, error)
	RecordIssuance(ctx context.Context, tx database.TxQuerier, shopID string, issued, bonusFunded int64) error
	RecordRedemption(ctx context.Context, tx database.TxQuerier, shopID string, amount int64) error
}

// LedgerRepositoryInterface defines the interface for period counters,
// per-shop balance attribution and the transaction log.
type LedgerRepositoryInterface interface {
	GetPeriodTotals(ctx context.Context, address, dayKey, monthKey string) (int64, int64, error)
	GetPeriodTotalsTx(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string) (int64, int64, error)
	AddToPeriods(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string, base int64) error
	GetShopBalances(ctx context.Context, address string) ([]model.ShopBalance, error)
	GetShopBalancesTx(ctx context.Context, tx database.TxQuerier, address string) ([]model.ShopBalance, error)
	CreditShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64) error
	DebitShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64, crossShop bool) error
	InsertTransaction(ctx context.Context, tx database.TxQuerier, t *model.LedgerTransaction) error
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RewardService issues repair rewards and reports customer earning state.
type RewardService struct {
	pool      TxBeginner
	customers CustomerRepositoryInterface
	shops     ShopRepositoryInterface
	ledger    LedgerRepositoryInterface
	emitter   EventEmitter
	metrics   Metrics
	limits    reward.Limits
	now       func() time.Time
}

// NewRewardService creates a new RewardService with the given pool and repositories.
func NewRewardService(pool *pgxpool.Pool, customers CustomerRepositoryInterface, shops ShopRepositoryInterface, ledger LedgerRepositoryInterface, limits reward.Limits) *RewardService {
	return NewRewardServiceWithTxBeginner(pool, customers, shops, ledger, limits)
}

// NewRewardServiceWithTxBeginner creates a RewardService with a custom TxBeginner.
// Primarily used for testing.
func NewRewardServiceWithTxBeginner(pool TxBeginner, customers CustomerRepositoryInterface, shops ShopRepositoryInterface, ledger LedgerRepositoryInterface, limits reward.Limits) *RewardService {
	return &RewardService{
		pool:      pool,
		customers: customers,
		shops:     shops,
		ledger:    ledger,
		emitter:   noopEmitter{},
		metrics:   noopMetrics{},
		limits:    limits,
		now:       time.Now,
	}
}

// WithEmitter sets the settlement emitter that receives token.minted events.
func (s *RewardService) WithEmitter(e EventEmitter) *RewardService {
	if e != nil {
		s.emitter = e
	}
	return s
}

// WithMetrics sets the metrics recorder.
func (s *RewardService) WithMetrics(m Metrics) *RewardService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// WithClock overrides the time source used for period keys and timestamps.
func (s *RewardService) WithClock(now func() time.Time) *RewardService {
	s.now = now
	return s
}

// IssueReward credits a customer for a completed repair at a shop.
// All reads and writes happen under the customer's row lock, so concurrent
// issuances for one customer cannot both pass the earning-limit check.
// Returns:
//   - ErrInsufficientRepairAmount if the repair earns no base reward
//   - ErrCustomerNotFound, ErrShopNotFound or ErrShopInactive
//   - ErrDailyLimitExceeded or ErrMonthlyLimitExceeded if a cap would be passed
func (s *RewardService) IssueReward(ctx context.Context, shopID, customerAddress string, repairAmountUSD decimal.Decimal) (*model.RewardResult, error) {
	address := NormalizeAddress(customerAddress)
	if shopID == "" || address == "" || repairAmountUSD.IsNegative() {
		return nil, ErrInvalidRequest
	}
	base := reward.BaseReward(repairAmountUSD)
	if base == 0 {
		return nil, ErrInsufficientRepairAmount
	}

	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock order: customer, then shop.
	customer, err := s.customers.GetForUpdate(ctx, tx, address)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer for update: %w", err)
	}

	shop, err := s.shops.GetForUpdate(ctx, tx, shopID)
	if err != nil {
		if errors.Is(err, ErrShopNotFound) {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop for update: %w", err)
	}
	if !shop.Active {
		return nil, ErrShopInactive
	}

	dayKey, monthKey := reward.DayKey(now), reward.MonthKey(now)
	daily, monthly, err := s.ledger.GetPeriodTotalsTx(ctx, tx, address, dayKey, monthKey)
	if err != nil {
		return nil, fmt.Errorf("get period totals: %w", err)
	}

	check := reward.CheckLimits(daily, monthly, base, s.limits)
	if !check.Allowed {
		s.metrics.LimitRejected(string(check.Exceeded))
		if check.Exceeded == reward.LimitDaily {
			return nil, ErrDailyLimitExceeded
		}
		return nil, ErrMonthlyLimitExceeded
	}

	tier := reward.TierFor(customer.LifetimeEarnings)
	computed := reward.Compute(repairAmountUSD, tier)

	bonusSkipped := false
	if computed.TierBonus > shop.PurchasedRcnBalance {
		log.Warn().
			Str("shop_id", shop.ShopID).
			Int64("bonus", computed.TierBonus).
			Int64("purchased_rcn_balance", shop.PurchasedRcnBalance).
			Msg("Tier bonus skipped: shop balance too low")
		computed.TierBonus = 0
		bonusSkipped = true
	}
	total := computed.Total()
	lifetime := customer.LifetimeEarnings + total
	newTier := reward.TierFor(lifetime)

	if err := s.ledger.AddToPeriods(ctx, tx, address, dayKey, monthKey, computed.BaseReward); err != nil {
		return nil, fmt.Errorf("add to periods: %w", err)
	}
	if err := s.customers.ApplyCredit(ctx, tx, address, total, newTier, now); err != nil {
		return nil, fmt.Errorf("credit customer: %w", err)
	}
	if err := s.ledger.CreditShopBalance(ctx, tx, address, shop.ShopID, total); err != nil {
		return nil, fmt.Errorf("credit shop balance: %w", err)
	}
	if err := s.shops.RecordIssuance(ctx, tx, shop.ShopID, total, computed.TierBonus); err != nil {
		if errors.Is(err, ErrInsufficientShopBalance) {
			return nil, ErrInsufficientShopBalance
		}
		return nil, fmt.Errorf("record issuance: %w", err)
	}

	amount := repairAmountUSD
	if err := s.ledger.InsertTransaction(ctx, tx, &model.LedgerTransaction{
		ID:              uuid.NewString(),
		Type:            model.TransactionMint,
		CustomerAddress: address,
		ShopID:          shop.ShopID,
		Amount:          total,
		BaseReward:      computed.BaseReward,
		TierBonus:       computed.TierBonus,
		RepairAmountUSD: &amount,
		CreatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("insert mint transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.metrics.RewardIssued(computed.BaseReward, computed.TierBonus)
	if bonusSkipped {
		s.metrics.BonusSkipped()
	}
	s.emitter.Emit(ctx, newEvent(model.EventTokenMinted, address, now, model.EventData{
		Amount:     total,
		ShopID:     shop.ShopID,
		Reason:     "repair_reward",
		BaseReward: computed.BaseReward,
		TierBonus:  computed.TierBonus,
	}))

	return &model.RewardResult{
		BaseReward:       computed.BaseReward,
		TierBonus:        computed.TierBonus,
		TotalReward:      total,
		BonusSkipped:     bonusSkipped,
		Tier:             newTier,
		LifetimeEarnings: lifetime,
	}, nil
}

// GetCustomerSummary returns the customer's balance, tier and current period usage.
// Returns ErrCustomerNotFound if the customer doesn't exist.
func (s *RewardService) GetCustomerSummary(ctx context.Context, customerAddress string) (*model.CustomerSummaryResponse, error) {
	address := NormalizeAddress(customerAddress)
	customer, err := s.customers.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	now := s.now().UTC()
	daily, monthly, err := s.ledger.GetPeriodTotals(ctx, address, reward.DayKey(now), reward.MonthKey(now))
	if err != nil {
		return nil, fmt.Errorf("get period totals: %w", err)
	}
	check := reward.CheckLimits(daily, monthly, 0, s.limits)

	return &model.CustomerSummaryResponse{
		Address:          customer.Address,
		Tier:             reward.TierFor(customer.LifetimeEarnings),
		LifetimeEarnings: customer.LifetimeEarnings,
		TotalRedemptions: customer.TotalRedemptions,
		Balance:          customer.Balance(),
		DailyEarnings:    daily,
		MonthlyEarnings:  monthly,
		DailyRemaining:   check.DailyRemaining,
		MonthlyRemaining: check.MonthlyRemaining,
	}, nil
}

// NormalizeAddress trims and lowercases a customer address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
