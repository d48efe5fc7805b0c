package entitlements

import (
	"testing"
	"time"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{in: "1_month", want: TierOneMonth, ok: true},
		{in: "3_months", want: TierThreeMonths, ok: true},
		{in: "6_months", want: TierSixMonths, ok: true},
		{in: "12_months", want: TierTwelveMonths, ok: true},
		{in: " 12_MONTHS ", want: TierTwelveMonths, ok: true},
		{in: "trial", want: "", ok: false},
		{in: "2_months", want: "", ok: false},
		{in: "", want: "", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseTier(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAddDuration(t *testing.T) {
	from := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	if got := TierOneMonth.AddDuration(from); !got.Equal(from.AddDate(0, 1, 0)) {
		t.Fatalf("1_month end = %v", got)
	}
	if got := TierTwelveMonths.AddDuration(from); !got.Equal(from.AddDate(1, 0, 0)) {
		t.Fatalf("12_months end = %v", got)
	}
	if got := TierTrial.AddDuration(from); !got.Equal(from.Add(48*time.Hour)) {
		t.Fatalf("trial end = %v", got)
	}
}
