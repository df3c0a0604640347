package model

import "time"

// Tier is a customer classification derived from lifetime earnings.
type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

// Customer is a token holder identified by a lowercase hex address.
// DailyEarnings and MonthlyEarnings are read from the period counters for the
// current UTC day and month; they are not stored on the customer row.
type Customer struct {
	Address          string     `json:"address"`
	Tier             Tier       `json:"tier"`
	LifetimeEarnings int64      `json:"lifetime_earnings"`
	TotalRedemptions int64      `json:"total_redemptions"`
	DailyEarnings    int64      `json:"daily_earnings"`
	MonthlyEarnings  int64      `json:"monthly_earnings"`
	LastEarnedAt     *time.Time `json:"last_earned_at,omitempty"`
	CreatedAt        time.Time  `json:"-"`
}

// Balance returns the customer's spendable token balance.
func (c *Customer) Balance() int64 {
	return c.LifetimeEarnings - c.TotalRedemptions
}

// ShopBalance is the part of a customer's balance attributed to the shop that issued it.
// CrossRedeemed is the share of Redeemed that was spent at other shops.
type ShopBalance struct {
	ShopID        string `json:"shop_id"`
	Earned        int64  `json:"earned"`
	Redeemed      int64  `json:"redeemed"`
	CrossRedeemed int64  `json:"cross_redeemed"`
}

// Available returns the unredeemed amount attributed to the shop.
func (b ShopBalance) Available() int64 {
	return b.Earned - b.Redeemed
}

// CrossShopAllowance returns how much of this balance may still be spent at
// other shops: percent of everything ever earned here, rounded down, less
// what was already spent elsewhere, and never more than is available.
func (b ShopBalance) CrossShopAllowance(percent int64) int64 {
	if percent <= 0 {
		return 0
	}
	allowance := min(b.Earned*percent/100-b.CrossRedeemed, b.Available())
	return max(allowance, 0)
}

// CustomerSummaryResponse is the API response DTO for GET /api/customers/:address
type CustomerSummaryResponse struct {
	Address          string `json:"address"`
	Tier             Tier   `json:"tier"`
	LifetimeEarnings int64  `json:"lifetime_earnings"`
	TotalRedemptions int64  `json:"total_redemptions"`
	Balance          int64  `json:"balance"`
	DailyEarnings    int64  `json:"daily_earnings"`
	MonthlyEarnings  int64  `json:"monthly_earnings"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}

// RedeemableResponse is the API response DTO for GET /api/customers/:address/redeemable
type RedeemableResponse struct {
	Address       string `json:"address"`
	ShopID        string `json:"shop_id"`
	MaxRedeemable int64  `json:"max_redeemable"`
}
