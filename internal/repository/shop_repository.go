package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

const shopColumns = `shop_id, active, cross_shop_enabled, purchased_rcn_balance, total_tokens_issued, total_redemptions, created_at`

// ShopRepository provides data access for shops using pgx.
type ShopRepository struct {
	pool PoolInterface
}

// NewShopRepository creates a new ShopRepository with the given pool.
func NewShopRepository(pool *pgxpool.Pool) *ShopRepository {
	return &ShopRepository{pool: pool}
}

// NewShopRepositoryWithPool creates a new ShopRepository with a custom pool interface.
// This is primarily used for testing.
func NewShopRepositoryWithPool(pool PoolInterface) *ShopRepository {
	return &ShopRepository{pool: pool}
}

func scanShop(row pgx.Row) (*model.Shop, error) {
	var s model.Shop
	err := row.Scan(
		&s.ShopID,
		&s.Active,
		&s.CrossShopEnabled,
		&s.PurchasedRcnBalance,
		&s.TotalTokensIssued,
		&s.TotalRedemptions,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a shop without locking.
// Returns nil, nil if the shop is not found.
func (r *ShopRepository) GetByID(ctx context.Context, shopID string) (*model.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE shop_id = $1`
	s, err := scanShop(r.pool.QueryRow(ctx, query, shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shop %s: %w", shopID, err)
	}
	return s, nil
}

// GetForUpdate retrieves a shop with a row lock (SELECT FOR UPDATE).
// Returns service.ErrShopNotFound if the shop doesn't exist.
func (r *ShopRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, shopID string) (*model.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE shop_id = $1 FOR UPDATE`
	s, err := scanShop(tx.QueryRow(ctx, query, shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrShopNotFound
		}
		return nil, fmt.Errorf("get shop for update %s: %w", shopID, err)
	}
	return s, nil
}

// RecordIssuance adds issued to the shop's issued total and spends bonusFunded
// from its purchased balance. The update only applies if the purchased balance
// covers bonusFunded; otherwise service.ErrInsufficientShopBalance is returned.
func (r *ShopRepository) RecordIssuance(ctx context.Context, tx database.TxQuerier, shopID string, issued, bonusFunded int64) error {
	query := `UPDATE shops
		SET total_tokens_issued = total_tokens_issued + $2,
			purchased_rcn_balance = purchased_rcn_balance - $3
		WHERE shop_id = $1 AND purchased_rcn_balance >= $3`
	tag, err := tx.Exec(ctx, query, shopID, issued, bonusFunded)
	if err != nil {
		return fmt.Errorf("record issuance for %s: %w", shopID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInsufficientShopBalance
	}
	return nil
}

// RecordRedemption adds amount to the shop's redemption total.
func (r *ShopRepository) RecordRedemption(ctx context.Context, tx database.TxQuerier, shopID string, amount int64) error {
	query := `UPDATE shops SET total_redemptions = total_redemptions + $2 WHERE shop_id = $1`
	tag, err := tx.Exec(ctx, query, shopID, amount)
	if err != nil {
		return fmt.Errorf("record redemption for %s: %w", shopID, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrShopNotFound
	}
	return nil
}
