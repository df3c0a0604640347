// Package reward holds the pure reward rules: repair reward schedule, tier
// bonuses, earning caps and the cross-shop redemption rule. Nothing in this
// package touches storage.
package reward

import (
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
)

var (
	minRepairAmount      = decimal.NewFromInt(50)
	standardRepairAmount = decimal.NewFromInt(100)
)

const (
	smallRepairReward    int64 = 10
	standardRepairReward int64 = 25
)

var tierBonuses = map[model.Tier]int64{
	model.TierBronze: 10,
	model.TierSilver: 20,
	model.TierGold:   30,
}

const defaultTierBonus int64 = 10

// Reward is the outcome of the reward schedule for a single repair.
type Reward struct {
	BaseReward int64
	TierBonus  int64
}

// Total returns base plus bonus.
func (r Reward) Total() int64 {
	return r.BaseReward + r.TierBonus
}

// BaseReward returns the threshold-based reward for a repair amount in USD.
// Repairs under $50 earn nothing.
func BaseReward(repairAmountUSD decimal.Decimal) int64 {
	switch {
	case repairAmountUSD.LessThan(minRepairAmount):
		return 0
	case repairAmountUSD.LessThan(standardRepairAmount):
		return smallRepairReward
	default:
		return standardRepairReward
	}
}

// TierBonus returns the bonus for a tier. Unknown tiers get the bronze bonus.
func TierBonus(tier model.Tier) int64 {
	if bonus, ok := tierBonuses[tier]; ok {
		return bonus
	}
	return defaultTierBonus
}

// Compute applies the reward schedule and, when the repair is eligible, the
// tier bonus.
func Compute(repairAmountUSD decimal.Decimal, tier model.Tier) Reward {
	base := BaseReward(repairAmountUSD)
	if base == 0 {
		return Reward{}
	}
	return Reward{BaseReward: base, TierBonus: TierBonus(tier)}
}
