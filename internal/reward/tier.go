package reward

import "github.com/fairyhunter13/rcn-reward-engine/internal/model"

const (
	silverThreshold int64 = 200
	goldThreshold   int64 = 1000
)

// TierFor derives the tier from lifetime earnings.
func TierFor(lifetimeEarnings int64) model.Tier {
	switch {
	case lifetimeEarnings >= goldThreshold:
		return model.TierGold
	case lifetimeEarnings >= silverThreshold:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}
