package models

import (
	"errors"
	"testing"
	"time"
)

func testPromo() *PromoCode {
	return &PromoCode{
		Code:            "SAVE10",
		Discount:        0.10,
		RemainingUses:   3,
		ExpiresAt:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ApplicableTiers: []byte(`["1_month","3_months"]`),
	}
}

func TestPromoCodeEligible(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	p := testPromo()
	if err := p.Eligible("1_month", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p = testPromo()
	if err := p.Eligible("1_month", p.ExpiresAt.Add(time.Second)); !errors.Is(err, ErrPromoExpired) {
		t.Fatalf("expected ErrPromoExpired, got %v", err)
	}

	p = testPromo()
	p.RemainingUses = 0
	if err := p.Eligible("1_month", now); !errors.Is(err, ErrPromoExhausted) {
		t.Fatalf("expected ErrPromoExhausted, got %v", err)
	}

	p = testPromo()
	if err := p.Eligible("12_months", now); !errors.Is(err, ErrPromoNotApplicable) {
		t.Fatalf("expected ErrPromoNotApplicable, got %v", err)
	}
}

func TestPromoCodeAppliesTo(t *testing.T) {
	p := testPromo()
	if !p.AppliesTo("3_months") {
		t.Fatal("3_months should be covered")
	}
	if p.AppliesTo("6_months") {
		t.Fatal("6_months should not be covered")
	}

	p.ApplicableTiers = []byte(`not json`)
	if p.AppliesTo("1_month") {
		t.Fatal("unparseable tier set must not apply")
	}
}
