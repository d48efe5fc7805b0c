package billing

import (
	"errors"

	"github.com/StakeSubHQ/StakeSub/internal/pkg/entitlements"
	"github.com/shopspring/decimal"
)

var ErrUnknownTier = errors.New("invalid subscription type")

// BaseAmounts is the USD price table per purchasable tier.
var BaseAmounts = map[entitlements.Tier]decimal.Decimal{
	entitlements.TierOneMonth:     decimal.NewFromFloat(19.99),
	entitlements.TierThreeMonths:  decimal.NewFromFloat(49.99),
	entitlements.TierSixMonths:    decimal.NewFromFloat(79.99),
	entitlements.TierTwelveMonths: decimal.NewFromFloat(139.99),
}

// FullGrantPoints is the total discount at which the subscription is granted
// outright: no charge, no invoice, no processor call.
const FullGrantPoints = 90

// AffiliateDiscountPoints returns the percentage points earned from active
// affiliates: 5 points each for the first 9, 10 points each from the 10th on.
// The function itself is unclamped; ComputePrice clamps the combined total.
func AffiliateDiscountPoints(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if n <= 9 {
		return 5 * n
	}
	return 45 + 10*(n-9)
}

// Quote is the outcome of pricing one tier for one caller.
type Quote struct {
	Base           decimal.Decimal
	Amount         decimal.Decimal
	DiscountPoints decimal.Decimal
	FullGrant      bool
}

// ComputePrice combines the affiliate and promo discounts for a tier.
// promoFraction is the promo code's stored discount fraction (0.10 = 10
// points) and must already be validated against the tier. The combined
// discount is clamped at 100 points; at FullGrantPoints or above the quote
// is a full grant and Amount is zero.
func ComputePrice(tier entitlements.Tier, affiliateCount int64, promoFraction float64) (*Quote, error) {
	base, ok := BaseAmounts[tier]
	if !ok {
		return nil, ErrUnknownTier
	}

	points := decimal.NewFromInt(AffiliateDiscountPoints(affiliateCount)).
		Add(decimal.NewFromFloat(promoFraction).Mul(decimal.NewFromInt(100)))
	hundred := decimal.NewFromInt(100)
	if points.GreaterThan(hundred) {
		points = hundred
	}

	q := &Quote{Base: base, DiscountPoints: points}
	if points.GreaterThanOrEqual(decimal.NewFromInt(FullGrantPoints)) {
		q.FullGrant = true
		q.Amount = decimal.Zero
		return q, nil
	}

	amount := base.Mul(hundred.Sub(points)).Div(hundred).Round(2)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	q.Amount = amount
	return q, nil
}
