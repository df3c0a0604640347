package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueRewardRequest is the DTO for issuing a repair reward
type IssueRewardRequest struct {
	ShopID          string `json:"shop_id" validate:"required,notblank,max=64"`
	CustomerAddress string `json:"customer_address" validate:"required,rcnaddr"`
	RepairAmountUSD string `json:"repair_amount_usd" validate:"required,notblank,max=32,usdamount"`
}

// RewardResult describes what a reward issuance credited.
type RewardResult struct {
	BaseReward       int64 `json:"base_reward"`
	TierBonus        int64 `json:"tier_bonus"`
	TotalReward      int64 `json:"total_reward"`
	BonusSkipped     bool  `json:"bonus_skipped"`
	Tier             Tier  `json:"tier"`
	LifetimeEarnings int64 `json:"lifetime_earnings"`
}

// TransactionType distinguishes ledger transaction rows.
type TransactionType string

const (
	TransactionMint   TransactionType = "mint"
	TransactionRedeem TransactionType = "redeem"
)

// LedgerTransaction is an append-only audit record of a credit or debit.
type LedgerTransaction struct {
	ID              string
	Type            TransactionType
	CustomerAddress string
	ShopID          string
	Amount          int64
	BaseReward      int64
	TierBonus       int64
	RepairAmountUSD *decimal.Decimal
	SessionID       *string
	CreatedAt       time.Time
}
