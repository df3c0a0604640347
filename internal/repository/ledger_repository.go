package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

// LedgerRepository stores the per-period earning counters, the per-shop
// attribution of customer balances and the transaction audit log.
// Callers must hold the customer's row lock when writing.
type LedgerRepository struct {
	pool PoolInterface
}

// NewLedgerRepository creates a new LedgerRepository with the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// NewLedgerRepositoryWithPool creates a new LedgerRepository with a custom pool interface.
// This is primarily used for testing.
func NewLedgerRepositoryWithPool(pool PoolInterface) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// GetPeriodTotals returns base rewards earned in the given day and month periods.
// Missing periods count as zero.
func (r *LedgerRepository) GetPeriodTotals(ctx context.Context, address, dayKey, monthKey string) (daily, monthly int64, err error) {
	return r.periodTotals(ctx, r.pool, address, dayKey, monthKey)
}

// GetPeriodTotalsTx is GetPeriodTotals inside a transaction.
func (r *LedgerRepository) GetPeriodTotalsTx(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string) (daily, monthly int64, err error) {
	return r.periodTotals(ctx, tx, address, dayKey, monthKey)
}

func (r *LedgerRepository) periodTotals(ctx context.Context, q database.TxQuerier, address, dayKey, monthKey string) (daily, monthly int64, err error) {
	query := `SELECT period_key, base_earned FROM customer_earning_periods
		WHERE customer_address = $1 AND period_key IN ($2, $3)`
	rows, err := q.Query(ctx, query, address, dayKey, monthKey)
	if err != nil {
		return 0, 0, fmt.Errorf("get period totals for %s: %w", address, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var earned int64
		if err := rows.Scan(&key, &earned); err != nil {
			return 0, 0, fmt.Errorf("scan period total: %w", err)
		}
		switch key {
		case dayKey:
			daily = earned
		case monthKey:
			monthly = earned
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate period rows: %w", err)
	}
	return daily, monthly, nil
}

// AddToPeriods adds a base reward to the day and month counters.
func (r *LedgerRepository) AddToPeriods(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string, base int64) error {
	query := `INSERT INTO customer_earning_periods (customer_address, period_key, base_earned)
		VALUES ($1, $2, $4), ($1, $3, $4)
		ON CONFLICT (customer_address, period_key)
		DO UPDATE SET base_earned = customer_earning_periods.base_earned + EXCLUDED.base_earned`
	if _, err := tx.Exec(ctx, query, address, dayKey, monthKey, base); err != nil {
		return fmt.Errorf("add to periods for %s: %w", address, err)
	}
	return nil
}

// GetShopBalances returns the customer's balance attribution ordered by shop id.
// On success, returns an empty slice (not nil) when the customer has none.
func (r *LedgerRepository) GetShopBalances(ctx context.Context, address string) ([]model.ShopBalance, error) {
	return r.shopBalances(ctx, r.pool, address)
}

// GetShopBalancesTx is GetShopBalances inside a transaction.
func (r *LedgerRepository) GetShopBalancesTx(ctx context.Context, tx database.TxQuerier, address string) ([]model.ShopBalance, error) {
	return r.shopBalances(ctx, tx, address)
}

func (r *LedgerRepository) shopBalances(ctx context.Context, q database.TxQuerier, address string) ([]model.ShopBalance, error) {
	query := `SELECT shop_id, earned, redeemed, cross_redeemed FROM customer_shop_balances
		WHERE customer_address = $1 ORDER BY shop_id`
	rows, err := q.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("get shop balances for %s: %w", address, err)
	}
	defer rows.Close()

	balances := []model.ShopBalance{}
	for rows.Next() {
		var b model.ShopBalance
		if err := rows.Scan(&b.ShopID, &b.Earned, &b.Redeemed, &b.CrossRedeemed); err != nil {
			return nil, fmt.Errorf("scan shop balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop balance rows: %w", err)
	}
	return balances, nil
}

// CreditShopBalance attributes amount of the customer's balance to shopID.
func (r *LedgerRepository) CreditShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64) error {
	query := `INSERT INTO customer_shop_balances (customer_address, shop_id, earned)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_address, shop_id)
		DO UPDATE SET earned = customer_shop_balances.earned + EXCLUDED.earned`
	if _, err := tx.Exec(ctx, query, address, shopID, amount); err != nil {
		return fmt.Errorf("credit shop balance %s/%s: %w", address, shopID, err)
	}
	return nil
}

// DebitShopBalance redeems amount from the balance attributed to shopID.
// A crossShop debit is also counted against the balance's cross-shop allowance.
// Returns service.ErrInsufficientBalance if the attributed balance does not cover it.
func (r *LedgerRepository) DebitShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64, crossShop bool) error {
	query := `UPDATE customer_shop_balances
		SET redeemed = redeemed + $3,
			cross_redeemed = cross_redeemed + CASE WHEN $4::boolean THEN $3 ELSE 0 END
		WHERE customer_address = $1 AND shop_id = $2 AND earned - redeemed >= $3`
	tag, err := tx.Exec(ctx, query, address, shopID, amount, crossShop)
	if err != nil {
		return fmt.Errorf("debit shop balance %s/%s: %w", address, shopID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInsufficientBalance
	}
	return nil
}

// InsertTransaction appends an audit record. The repair amount is stored
// exactly as received.
// A second redeem record for the same session violates the unique index and
// returns service.ErrInvalidSessionState.
func (r *LedgerRepository) InsertTransaction(ctx context.Context, tx database.TxQuerier, t *model.LedgerTransaction) error {
	var repairAmount *string
	if t.RepairAmountUSD != nil {
		s := t.RepairAmountUSD.String()
		repairAmount = &s
	}
	query := `INSERT INTO ledger_transactions
		(id, type, customer_address, shop_id, amount, base_reward, tier_bonus, repair_amount_usd, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)`
	_, err := tx.Exec(ctx, query,
		t.ID, string(t.Type), t.CustomerAddress, t.ShopID, t.Amount,
		t.BaseReward, t.TierBonus, repairAmount, t.SessionID, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrInvalidSessionState
		}
		return fmt.Errorf("insert %s transaction: %w", t.Type, err)
	}
	return nil
}
