package pricing

import (
	"errors"
	"testing"
	"time"

	"ringside-app/internal/domain/events"
)

func testEvent() *events.Event {
	return &events.Event{
		ID:                  1,
		Slug:                "summer-slam-open",
		PriceFullCents:      24900,
		PriceSingleDayCents: 12900,
		PriceTeamCents:      59900,
	}
}

func TestResolveBasePrice(t *testing.T) {
	ev := testEvent()

	tests := []struct {
		option string
		want   int64
	}{
		{events.OptionFull, 24900},
		{events.OptionSingleDay, 12900},
		{events.OptionTeam, 59900},
	}
	for _, tt := range tests {
		got, err := ResolveBasePrice(ev, tt.option)
		if err != nil {
			t.Fatalf("ResolveBasePrice(%q): %v", tt.option, err)
		}
		if got != tt.want {
			t.Errorf("ResolveBasePrice(%q) = %d, want %d", tt.option, got, tt.want)
		}
	}
}

func TestResolveBasePrice_UnknownOption(t *testing.T) {
	if _, err := ResolveBasePrice(testEvent(), "vip"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestResolveBasePrice_OptionNotOffered(t *testing.T) {
	ev := testEvent()
	ev.PriceTeamCents = 0
	if _, err := ResolveBasePrice(ev, events.OptionTeam); err == nil {
		t.Fatal("expected error for unoffered option")
	}
}

func TestValidateDiscount(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		dc        *events.DiscountCode
		original  int64
		wantValid bool
		wantFinal int64
	}{
		{"nil code", nil, 24900, false, 24900},
		{"inactive", &events.DiscountCode{Code: "X", PercentOff: 10}, 24900, false, 24900},
		{"expired", &events.DiscountCode{Code: "X", PercentOff: 10, Active: true, ExpiresAt: &past}, 24900, false, 24900},
		{"percent", &events.DiscountCode{Code: "X", PercentOff: 10, Active: true, ExpiresAt: &future}, 24900, true, 22410},
		{"full percent", &events.DiscountCode{Code: "FREE100", PercentOff: 100, Active: true}, 24900, true, 0},
		{"fixed amount", &events.DiscountCode{Code: "X", AmountOffCents: 5000, Active: true}, 24900, true, 19900},
		{"fixed exceeds price", &events.DiscountCode{Code: "X", AmountOffCents: 30000, Active: true}, 24900, true, 0},
		{"percent over 100", &events.DiscountCode{Code: "X", PercentOff: 150, Active: true}, 24900, false, 24900},
		{"no discount configured", &events.DiscountCode{Code: "X", Active: true}, 24900, false, 24900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateDiscount(tt.dc, tt.original, now)
			if got.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if got.FinalPriceCents != tt.wantFinal {
				t.Errorf("FinalPriceCents = %d, want %d", got.FinalPriceCents, tt.wantFinal)
			}
		})
	}
}

func TestValidateDiscount_NeverNegative(t *testing.T) {
	dc := &events.DiscountCode{Code: "BIG", AmountOffCents: 100000, Active: true}
	got := ValidateDiscount(dc, 500, time.Now())
	if got.FinalPriceCents != 0 {
		t.Fatalf("final price went negative-ish: %d", got.FinalPriceCents)
	}
	if got.DiscountCents != 500 {
		t.Fatalf("discount should be capped at the original price, got %d", got.DiscountCents)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  free100 "); got != "FREE100" {
		t.Fatalf("NormalizeCode = %q", got)
	}
}
