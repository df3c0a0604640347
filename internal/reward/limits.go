package reward

// Limits are the caps on base rewards. Tier bonuses never count against them.
type Limits struct {
	DailyCap   int64
	MonthlyCap int64
}

// DefaultLimits returns the standard caps of 40 per day and 500 per month.
func DefaultLimits() Limits {
	return Limits{DailyCap: 40, MonthlyCap: 500}
}

// LimitKind names the cap that refused an issuance.
type LimitKind string

const (
	LimitNone    LimitKind = ""
	LimitDaily   LimitKind = "daily"
	LimitMonthly LimitKind = "monthly"
)

// LimitCheck is the result of CheckLimits.
// Remaining values are computed before the proposed reward is applied.
type LimitCheck struct {
	Allowed          bool
	Exceeded         LimitKind
	DailyRemaining   int64
	MonthlyRemaining int64
}

// CheckLimits decides whether proposedBase may be credited on top of what the
// customer already earned this day and month. Issuance is all-or-nothing:
// a reward that would cross either cap is refused outright.
func CheckLimits(dailyEarned, monthlyEarned, proposedBase int64, limits Limits) LimitCheck {
	check := LimitCheck{
		DailyRemaining:   remaining(limits.DailyCap, dailyEarned),
		MonthlyRemaining: remaining(limits.MonthlyCap, monthlyEarned),
	}
	switch {
	case dailyEarned+proposedBase > limits.DailyCap:
		check.Exceeded = LimitDaily
	case monthlyEarned+proposedBase > limits.MonthlyCap:
		check.Exceeded = LimitMonthly
	default:
		check.Allowed = true
	}
	return check
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
