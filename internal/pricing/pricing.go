// Package pricing resolves registration prices and discount codes. Everything
// here is a pure function over already-loaded rows; lookups stay in the
// handlers so these stay trivially testable.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ringside-app/internal/domain/events"
)

var ErrUnknownOption = errors.New("unknown registration option")

// ResolveBasePrice returns the base price in cents for a registration option
// on the given event.
func ResolveBasePrice(ev *events.Event, option string) (int64, error) {
	var price int64
	switch option {
	case events.OptionFull:
		price = ev.PriceFullCents
	case events.OptionSingleDay:
		price = ev.PriceSingleDayCents
	case events.OptionTeam:
		price = ev.PriceTeamCents
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	if price <= 0 {
		return 0, fmt.Errorf("option %q is not offered for event %q", option, ev.Slug)
	}
	return price, nil
}

// DiscountResult is the outcome of validating a code against a price.
type DiscountResult struct {
	Valid           bool  `json:"valid"`
	DiscountCents   int64 `json:"discountAmount"`
	FinalPriceCents int64 `json:"finalPrice"`
}

// ValidateDiscount applies a discount code to an original price. An inactive,
// expired, or nil code yields Valid=false with the original price unchanged.
// The final price is floored at zero; a code covering the whole amount is how
// free registrations come into existence.
func ValidateDiscount(dc *events.DiscountCode, originalCents int64, now time.Time) DiscountResult {
	invalid := DiscountResult{Valid: false, FinalPriceCents: originalCents}
	if dc == nil || !dc.Active {
		return invalid
	}
	if dc.ExpiresAt != nil && now.After(*dc.ExpiresAt) {
		return invalid
	}

	var off int64
	if dc.PercentOff > 0 {
		if dc.PercentOff > 100 {
			return invalid
		}
		off = originalCents * int64(dc.PercentOff) / 100
	} else if dc.AmountOffCents > 0 {
		off = dc.AmountOffCents
	} else {
		return invalid
	}

	if off > originalCents {
		off = originalCents
	}
	return DiscountResult{
		Valid:           true,
		DiscountCents:   off,
		FinalPriceCents: originalCents - off,
	}
}

// NormalizeCode canonicalizes user-entered discount codes for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
