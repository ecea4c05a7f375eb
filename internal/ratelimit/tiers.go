package ratelimit

// Subscription tiers.
const (
	TierFree       = "free"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
	TierAdmin      = "admin"
)

// Limits holds the request ceilings for one tier.
type Limits struct {
	Minute int64
	Hour   int64
	Day    int64
}

var tierLimits = map[string]Limits{
	TierFree:       {Minute: 5, Hour: 50, Day: 200},
	TierPremium:    {Minute: 20, Hour: 500, Day: 2000},
	TierEnterprise: {Minute: 100, Hour: 2000, Day: 10000},
	TierAdmin:      {Minute: 1000, Hour: 10000, Day: 50000},
}

// LimitsFor returns the ceilings for a tier. Unknown tiers get the free
// tier's ceilings.
func LimitsFor(tier string) Limits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[TierFree]
}

func (l Limits) forWindow(window string) int64 {
	switch window {
	case WindowMinute:
		return l.Minute
	case WindowHour:
		return l.Hour
	case WindowDay:
		return l.Day
	}
	return 0
}
