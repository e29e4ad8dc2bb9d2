package admin

import (
	"net/http"
	"time"

	"ringside-app/database"
	"ringside-app/internal/domain/registrations"

	"github.com/gin-gonic/gin"
)

type AdminRegistration struct {
	ID              uint    `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	EventID         uint    `json:"event_id"`
	Option          string  `json:"option"`
	BasePriceCents  int64   `json:"base_price_cents"`
	FinalPriceCents int64   `json:"final_price_cents"`
	DiscountCode    *string `json:"discount_code,omitempty"`
	Status          string  `json:"status"`
	PaymentRef      *string `json:"payment_ref,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

type AdminPayment struct {
	ID              uint       `json:"id"`
	RegistrationID  uint       `json:"registration_id"`
	PaymentIntentID string     `json:"payment_intent_id"`
	AmountCents     int64      `json:"amount_cents"`
	Status          string     `json:"status"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
}

func ListRegistrations(c *gin.Context) {
	var regs []registrations.Registration
	err := database.DB.Preload("Payment").Order("created_at DESC").Find(&regs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load registrations"})
		return
	}

	out := make([]AdminRegistration, 0, len(regs))
	for _, r := range regs {
		row := AdminRegistration{
			ID:              r.ID,
			FirstName:       r.FirstName,
			LastName:        r.LastName,
			Email:           r.Email,
			Phone:           r.Phone,
			EventID:         r.EventID,
			Option:          r.Option,
			BasePriceCents:  r.BasePriceCents,
			FinalPriceCents: r.FinalPriceCents,
			DiscountCode:    r.DiscountCode,
			Status:          r.Status,
			CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		}
		if r.Payment != nil {
			ref := r.Payment.StripePaymentIntentID
			row.PaymentRef = &ref
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, out)
}

func ListPayments(c *gin.Context) {
	var pays []registrations.Payment
	err := database.DB.Order("created_at DESC").Find(&pays).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	out := make([]AdminPayment, 0, len(pays))
	for _, p := range pays {
		out = append(out, AdminPayment{
			ID:              p.ID,
			RegistrationID:  p.RegistrationID,
			PaymentIntentID: p.StripePaymentIntentID,
			AmountCents:     p.AmountCents,
			Status:          p.Status,
			PaymentDate:     p.PaymentDate,
		})
	}
	c.JSON(http.StatusOK, out)
}
