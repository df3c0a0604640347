package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer runs a statement without returning rows.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Schema is the ledger schema. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		address VARCHAR(42) PRIMARY KEY,
		tier VARCHAR(16) NOT NULL DEFAULT 'BRONZE',
		lifetime_earnings BIGINT NOT NULL DEFAULT 0 CHECK (lifetime_earnings >= 0),
		total_redemptions BIGINT NOT NULL DEFAULT 0 CHECK (total_redemptions >= 0),
		last_earned_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shops (
		shop_id VARCHAR(64) PRIMARY KEY,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		cross_shop_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		purchased_rcn_balance BIGINT NOT NULL DEFAULT 0 CHECK (purchased_rcn_balance >= 0),
		total_tokens_issued BIGINT NOT NULL DEFAULT 0,
		total_redemptions BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS customer_earning_periods (
		customer_address VARCHAR(42) NOT NULL REFERENCES customers(address),
		period_key VARCHAR(16) NOT NULL,
		base_earned BIGINT NOT NULL DEFAULT 0 CHECK (base_earned >= 0),
		PRIMARY KEY (customer_address, period_key)
	)`,
	`CREATE TABLE IF NOT EXISTS customer_shop_balances (
		customer_address VARCHAR(42) NOT NULL REFERENCES customers(address),
		shop_id VARCHAR(64) NOT NULL REFERENCES shops(shop_id),
		earned BIGINT NOT NULL DEFAULT 0,
		redeemed BIGINT NOT NULL DEFAULT 0,
		cross_redeemed BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (customer_address, shop_id),
		CHECK (redeemed >= 0 AND redeemed <= earned),
		CHECK (cross_redeemed >= 0 AND cross_redeemed <= redeemed)
	)`,
	`CREATE TABLE IF NOT EXISTS redemption_sessions (
		session_id UUID PRIMARY KEY,
		shop_id VARCHAR(64) NOT NULL REFERENCES shops(shop_id),
		customer_address VARCHAR(42) NOT NULL REFERENCES customers(address),
		requested_amount BIGINT NOT NULL CHECK (requested_amount > 0),
		max_amount BIGINT NOT NULL CHECK (max_amount > 0),
		status VARCHAR(16) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected', 'expired')),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		resolved_at TIMESTAMP WITH TIME ZONE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_redemption_sessions_pending
		ON redemption_sessions (customer_address, expires_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id UUID PRIMARY KEY,
		type VARCHAR(16) NOT NULL CHECK (type IN ('mint', 'redeem')),
		customer_address VARCHAR(42) NOT NULL REFERENCES customers(address),
		shop_id VARCHAR(64) NOT NULL REFERENCES shops(shop_id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		base_reward BIGINT NOT NULL DEFAULT 0,
		tier_bonus BIGINT NOT NULL DEFAULT 0,
		repair_amount_usd NUMERIC CHECK (repair_amount_usd >= 0),
		session_id UUID UNIQUE REFERENCES redemption_sessions(session_id),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_transactions_customer
		ON ledger_transactions (customer_address, created_at)`,
}

// Migrate applies Schema in order.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	log.Info().Int("statements", len(Schema)).Msg("database schema up to date")
	return nil
}
