package events

import "time"

// Registration options sold per event. Stored as plain strings so the
// frontend payloads map 1:1 onto the column.
const (
	OptionFull      = "full"
	OptionSingleDay = "single_day"
	OptionTeam      = "team"
)

type Event struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `json:"name"`
	Slug     string `gorm:"uniqueIndex" json:"slug"`
	Location string `json:"location"`

	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`

	// Prices in cents. A zero price means the option is not offered.
	PriceFullCents      int64 `json:"price_full_cents"`
	PriceSingleDayCents int64 `json:"price_single_day_cents"`
	PriceTeamCents      int64 `json:"price_team_cents"`

	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type DiscountCode struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"uniqueIndex" json:"code"`

	// Exactly one of these should be set. PercentOff wins if both are.
	PercentOff     int   `json:"percent_off"`
	AmountOffCents int64 `json:"amount_off_cents"`

	Active    bool       `gorm:"default:true" json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
