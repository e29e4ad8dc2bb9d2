package registrations

import "time"

// Registration statuses. A registration never leaves "completed".
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// FreeReferencePrefix namespaces the synthetic payment references minted for
// zero-amount registrations so they can never collide with a real Stripe
// payment intent id ("pi_...").
const FreeReferencePrefix = "free_"

type Registration struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `gorm:"index" json:"email"`
	Phone     string `json:"phone"`

	EventID uint   `gorm:"index" json:"event_id"`
	Option  string `json:"option"`

	BasePriceCents  int64   `json:"base_price_cents"`
	FinalPriceCents int64   `json:"final_price_cents"`
	DiscountCode    *string `json:"discount_code,omitempty"`

	Status    string    `gorm:"index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Payment *Payment `json:"payment,omitempty"`
}

type Payment struct {
	ID             uint `gorm:"primaryKey" json:"id"`
	RegistrationID uint `gorm:"index" json:"registration_id"`

	// Unique so a replayed success callback upserts instead of inserting twice.
	StripePaymentIntentID string `gorm:"uniqueIndex" json:"stripe_payment_intent_id"`

	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
