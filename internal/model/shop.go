package model

import "time"

// Shop is a participating repair shop.
// PurchasedRcnBalance funds tier bonuses and is only decremented by bonus issuance.
type Shop struct {
	ShopID              string    `json:"shop_id"`
	Active              bool      `json:"active"`
	CrossShopEnabled    bool      `json:"cross_shop_enabled"`
	PurchasedRcnBalance int64     `json:"purchased_rcn_balance"`
	TotalTokensIssued   int64     `json:"total_tokens_issued"`
	TotalRedemptions    int64     `json:"total_redemptions"`
	CreatedAt           time.Time `json:"-"`
}
