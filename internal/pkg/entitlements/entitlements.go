package entitlements

import (
	"strings"
	"time"
)

// Tier is a subscription duration class.
type Tier string

const (
	TierOneMonth     Tier = "1_month"
	TierThreeMonths  Tier = "3_months"
	TierSixMonths    Tier = "6_months"
	TierTwelveMonths Tier = "12_months"
	TierTrial        Tier = "trial"
)

// TrialDuration is the validity window granted by a one-time trial.
const TrialDuration = 48 * time.Hour

// PaidTiers lists the purchasable tiers in ascending duration order.
func PaidTiers() []Tier {
	return []Tier{TierOneMonth, TierThreeMonths, TierSixMonths, TierTwelveMonths}
}

// ParseTier normalizes a client-supplied subscription type. The second
// return is false for anything that is not a purchasable tier.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierOneMonth:
		return TierOneMonth, true
	case TierThreeMonths:
		return TierThreeMonths, true
	case TierSixMonths:
		return TierSixMonths, true
	case TierTwelveMonths:
		return TierTwelveMonths, true
	default:
		return "", false
	}
}

// AddDuration returns the subscription end reached by extending from the
// given start. Month-based tiers add calendar months, the yearly tier adds
// one calendar year.
func (t Tier) AddDuration(from time.Time) time.Time {
	switch t {
	case TierOneMonth:
		return from.AddDate(0, 1, 0)
	case TierThreeMonths:
		return from.AddDate(0, 3, 0)
	case TierSixMonths:
		return from.AddDate(0, 6, 0)
	case TierTwelveMonths:
		return from.AddDate(1, 0, 0)
	case TierTrial:
		return from.Add(TrialDuration)
	default:
		return from
	}
}

func (t Tier) String() string {
	return string(t)
}
