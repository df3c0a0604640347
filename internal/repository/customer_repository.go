package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const customerColumns = `address, tier, lifetime_earnings, total_redemptions, last_earned_at, created_at`

// CustomerRepository provides data access for customers using pgx.
type CustomerRepository struct {
	pool PoolInterface
}

// NewCustomerRepository creates a new CustomerRepository with the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// NewCustomerRepositoryWithPool creates a new CustomerRepository with a custom pool interface.
// This is primarily used for testing.
func NewCustomerRepositoryWithPool(pool PoolInterface) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	var tier string
	err := row.Scan(
		&c.Address,
		&tier,
		&c.LifetimeEarnings,
		&c.TotalRedemptions,
		&c.LastEarnedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Tier = model.Tier(tier)
	return &c, nil
}

// GetByAddress retrieves a customer without locking.
// Returns nil, nil if the customer is not found (service layer handles this).
func (r *CustomerRepository) GetByAddress(ctx context.Context, address string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE address = $1`
	c, err := scanCustomer(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get customer %s: %w", address, err)
	}
	return c, nil
}

// GetForUpdate retrieves a customer with a row lock (SELECT FOR UPDATE).
// Every balance or counter change for the customer happens while this lock is held.
// Returns service.ErrCustomerNotFound if the customer doesn't exist.
func (r *CustomerRepository) GetForUpdate(ctx context.Context, tx database.TxQuerier, address string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE address = $1 FOR UPDATE`
	c, err := scanCustomer(tx.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer for update %s: %w", address, err)
	}
	return c, nil
}

// ApplyCredit adds amount to lifetime earnings and stores the recomputed tier.
func (r *CustomerRepository) ApplyCredit(ctx context.Context, tx database.TxQuerier, address string, amount int64, tier model.Tier, at time.Time) error {
	query := `UPDATE customers
		SET lifetime_earnings = lifetime_earnings + $2, tier = $3, last_earned_at = $4
		WHERE address = $1`
	tag, err := tx.Exec(ctx, query, address, amount, string(tier), at)
	if err != nil {
		return fmt.Errorf("credit customer %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrCustomerNotFound
	}
	return nil
}

// ApplyDebit adds amount to total redemptions only if the spendable balance covers it.
// Returns service.ErrInsufficientBalance otherwise.
func (r *CustomerRepository) ApplyDebit(ctx context.Context, tx database.TxQuerier, address string, amount int64) error {
	query := `UPDATE customers
		SET total_redemptions = total_redemptions + $2
		WHERE address = $1 AND lifetime_earnings - total_redemptions >= $2`
	tag, err := tx.Exec(ctx, query, address, amount)
	if err != nil {
		return fmt.Errorf("debit customer %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrInsufficientBalance
	}
	return nil
}
