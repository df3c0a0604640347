package reward

import "github.com/fairyhunter13/rcn-reward-engine/internal/model"

// DefaultCrossShopPercent is the share of value redeemable away from the
// shop that issued the tokens.
const DefaultCrossShopPercent int64 = 20

// MaxRedeemable returns how much of a customer's balance can be spent at
// shopID. Balance attributed to shopID counts in full. Balance attributed to
// another shop counts up to that shop's cross-shop allowance, and only when
// shopID accepts cross-shop redemption.
func MaxRedeemable(balances []model.ShopBalance, shopID string, crossShopEnabled bool, crossShopPercent int64) int64 {
	percent := effectivePercent(crossShopEnabled, crossShopPercent)
	var total int64
	for _, b := range balances {
		if b.ShopID == shopID {
			total += max(b.Available(), 0)
			continue
		}
		total += b.CrossShopAllowance(percent)
	}
	return total
}

// DebitPlan is how a redemption amount is taken from attributed balances.
// CrossShop marks a debit against a balance issued by another shop.
type DebitPlan struct {
	ShopID    string
	Amount    int64
	CrossShop bool
}

// PlanDebit allocates amount across attributed balances: the redeeming shop
// first, then the other shops in the order given, each limited to its
// cross-shop allowance. It returns false if the balances cannot cover amount.
func PlanDebit(balances []model.ShopBalance, shopID string, amount int64, crossShopEnabled bool, crossShopPercent int64) ([]DebitPlan, bool) {
	if amount <= 0 {
		return nil, false
	}
	percent := effectivePercent(crossShopEnabled, crossShopPercent)
	ordered := make([]model.ShopBalance, 0, len(balances))
	for _, b := range balances {
		if b.ShopID == shopID {
			ordered = append([]model.ShopBalance{b}, ordered...)
			continue
		}
		ordered = append(ordered, b)
	}

	var plan []DebitPlan
	left := amount
	for _, b := range ordered {
		if left == 0 {
			break
		}
		home := b.ShopID == shopID
		avail := b.Available()
		if !home {
			avail = b.CrossShopAllowance(percent)
		}
		if avail <= 0 {
			continue
		}
		take := min(avail, left)
		plan = append(plan, DebitPlan{ShopID: b.ShopID, Amount: take, CrossShop: !home})
		left -= take
	}
	if left > 0 {
		return nil, false
	}
	return plan, true
}

func effectivePercent(crossShopEnabled bool, crossShopPercent int64) int64 {
	if !crossShopEnabled {
		return 0
	}
	return crossShopPercent
}
