package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Payment statuses as recorded locally. Gateway-side statuses are normalized
// before they reach this package.
const (
	PaymentStatusCompleted = "completed"
)

// ErrNotFound is returned when a lookup by payment reference matches nothing.
var ErrNotFound = errors.New("not found")

// Fields is the registrant data captured by the checkout form, passed through
// verbatim to the durable record.
type Fields struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	EventID         uint
	Option          string
	BasePriceCents  int64
	FinalPriceCents int64
	DiscountCode    *string
}

// IsFreeReference reports whether a payment reference is one of the synthetic
// tokens minted for zero-amount registrations rather than a gateway intent id.
func IsFreeReference(ref string) bool {
	return strings.HasPrefix(ref, FreeReferencePrefix)
}

// RecordPaymentSuccess durably records a confirmed payment and completes the
// associated registration, keyed by the external payment intent id.
//
// The call is idempotent: replaying the same intent id (webhook retries,
// double-fired success callbacks) returns the originally completed
// registration and never writes a second Payment row. Free registrations go
// through the exact same path with a free_-prefixed reference, so the paid and
// free writes cannot drift apart.
func RecordPaymentSuccess(ctx context.Context, db *gorm.DB, paymentIntentID string, fields Fields) (*Registration, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, errors.New("payment intent id is required")
	}

	var out *Registration
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replay fast path: the payment is already recorded.
		if reg, err := findByPaymentReference(tx, paymentIntentID); err == nil {
			out = reg
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		reg, err := findOrCreatePending(tx, fields)
		if err != nil {
			return err
		}

		now := time.Now()
		pay := Payment{
			RegistrationID:        reg.ID,
			StripePaymentIntentID: paymentIntentID,
			AmountCents:           fields.FinalPriceCents,
			Status:                PaymentStatusCompleted,
			PaymentDate:           &now,
		}
		// ON CONFLICT DO NOTHING instead of catching the unique violation:
		// Postgres aborts the transaction on a raised constraint error, which
		// would poison the re-read below. Zero rows affected means a
		// concurrent replay won the race and its row is authoritative.
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pay)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			existing, lookupErr := findByPaymentReference(tx, paymentIntentID)
			if lookupErr != nil {
				return lookupErr
			}
			out = existing
			return nil
		}

		if err := tx.Model(&Registration{}).
			Where("id = ?", reg.ID).
			Update("status", StatusCompleted).Error; err != nil {
			return err
		}

		reg.Status = StatusCompleted
		reg.Payment = &pay
		out = reg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record payment success for %s: %w", paymentIntentID, err)
	}
	return out, nil
}

// FindByPaymentReference returns the completed registration funded by the
// given payment reference, or ErrNotFound.
func FindByPaymentReference(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Registration, error) {
	return findByPaymentReference(db.WithContext(ctx), paymentIntentID)
}

func findByPaymentReference(tx *gorm.DB, paymentIntentID string) (*Registration, error) {
	var pay Payment
	err := tx.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&pay).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pay.Status != PaymentStatusCompleted {
		return nil, ErrNotFound
	}

	var reg Registration
	if err := tx.Where("id = ?", pay.RegistrationID).First(&reg).Error; err != nil {
		return nil, err
	}
	reg.Payment = &pay
	return &reg, nil
}

// findOrCreatePending reuses the pending registration created earlier in the
// same checkout attempt when one exists, so a reload between "form submitted"
// and "payment confirmed" does not leave orphan rows behind.
func findOrCreatePending(tx *gorm.DB, fields Fields) (*Registration, error) {
	email := strings.TrimSpace(strings.ToLower(fields.Email))
	if email == "" {
		return nil, errors.New("registrant email is required")
	}

	var reg Registration
	err := tx.Where("email = ? AND event_id = ? AND option = ? AND status = ?",
		email, fields.EventID, fields.Option, StatusPending).
		Order("created_at DESC").
		First(&reg).Error
	if err == nil {
		return &reg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	reg = Registration{
		FirstName:       strings.TrimSpace(fields.FirstName),
		LastName:        strings.TrimSpace(fields.LastName),
		Email:           email,
		Phone:           strings.TrimSpace(fields.Phone),
		EventID:         fields.EventID,
		Option:          fields.Option,
		BasePriceCents:  fields.BasePriceCents,
		FinalPriceCents: fields.FinalPriceCents,
		DiscountCode:    fields.DiscountCode,
		Status:          StatusPending,
	}
	if err := tx.Create(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// CreatePending records a registration before payment, per the form-first
// flow: the row exists in "pending" while the payment is in flight.
func CreatePending(ctx context.Context, db *gorm.DB, fields Fields) (*Registration, error) {
	var out *Registration
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reg, err := findOrCreatePending(tx, fields)
		if err != nil {
			return err
		}
		out = reg
		return nil
	})
	return out, err
}
