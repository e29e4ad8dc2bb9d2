package checkout

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ringside-app/internal/checkout"
	"ringside-app/internal/domain/events"
	"ringside-app/internal/domain/registrations"
	"ringside-app/internal/pricing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler exposes the checkout flow over HTTP. It owns no state beyond its
// dependencies; all reconciliation logic lives in internal/checkout.
type Handler struct {
	DB      *gorm.DB
	Manager *checkout.Manager
	Log     zerolog.Logger
}

func NewHandler(db *gorm.DB, manager *checkout.Manager, log zerolog.Logger) *Handler {
	return &Handler{DB: db, Manager: manager, Log: log}
}

type registrationData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type createIntentRequest struct {
	Option           string           `json:"option" binding:"required"`
	RegistrationData registrationData `json:"registrationData"`
	DiscountedAmount *int64           `json:"discountedAmount"`
	DiscountCode     string           `json:"discountCode"`
	CheckoutToken    string           `json:"checkoutToken"`
}

// CreatePaymentIntent handles POST /events/:eventId/create-payment-intent.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}

	var body createIntentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_REQUEST"})
		return
	}
	if body.RegistrationData.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registrant email is required", "code": "INVALID_REQUEST"})
		return
	}

	basePrice, err := pricing.ResolveBasePrice(ev, body.Option)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	finalPrice, discountCode, ok := h.resolveFinalPrice(c, basePrice, body.DiscountedAmount, body.DiscountCode)
	if !ok {
		return
	}

	result, err := h.Manager.RequestPaymentIntent(c.Request.Context(), checkout.IntentRequest{
		Email:         body.RegistrationData.Email,
		EventID:       ev.ID,
		Option:        body.Option,
		CheckoutToken: body.CheckoutToken,
		AmountCents:   finalPrice,
		Metadata: map[string]string{
			"event_id":         fmt.Sprint(ev.ID),
			"option":           body.Option,
			"first_name":       body.RegistrationData.FirstName,
			"last_name":        body.RegistrationData.LastName,
			"email":            body.RegistrationData.Email,
			"phone":            body.RegistrationData.Phone,
			"base_price_cents": fmt.Sprint(basePrice),
		},
	})
	if err != nil {
		h.writeCheckoutError(c, err)
		return
	}

	if result.FreeRegistration {
		c.JSON(http.StatusOK, gin.H{"isFreeRegistration": true})
		return
	}

	if result.AlreadySucceeded {
		// The money already moved; the client must record the success, not
		// collect payment details again.
		c.JSON(http.StatusOK, gin.H{
			"paymentIntentId":  result.PaymentIntentID,
			"amount":           result.AmountCents,
			"paymentSucceeded": true,
		})
		return
	}

	// The registration exists in "pending" while the payment is in flight.
	fields := registrations.Fields{
		FirstName:       body.RegistrationData.FirstName,
		LastName:        body.RegistrationData.LastName,
		Email:           body.RegistrationData.Email,
		Phone:           body.RegistrationData.Phone,
		EventID:         ev.ID,
		Option:          body.Option,
		BasePriceCents:  basePrice,
		FinalPriceCents: finalPrice,
		DiscountCode:    discountCode,
	}
	if _, err := registrations.CreatePending(c.Request.Context(), h.DB, fields); err != nil {
		h.Log.Error().Err(err).Msg("failed to create pending registration")
	}

	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    result.ClientSecret,
		"paymentIntentId": result.PaymentIntentID,
		"amount":          result.AmountCents,
	})
}

type validateDiscountRequest struct {
	DiscountCode  string `json:"discountCode" binding:"required"`
	OriginalPrice int64  `json:"originalPrice" binding:"required"`
}

// ValidateDiscount handles POST /validate-discount.
func (h *Handler) ValidateDiscount(c *gin.Context) {
	var body validateDiscountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_REQUEST"})
		return
	}

	dc, err := h.lookupDiscountCode(body.DiscountCode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up discount code"})
		return
	}

	result := pricing.ValidateDiscount(dc, body.OriginalPrice, time.Now())
	c.JSON(http.StatusOK, gin.H{"valid": result.Valid, "discount": result})
}

type paymentSuccessRequest struct {
	PaymentIntentID  string           `json:"paymentIntentId"`
	Option           string           `json:"option" binding:"required"`
	RegistrationData registrationData `json:"registrationData"`
	DiscountCode     string           `json:"discountCode"`
	FreeRegistration bool             `json:"freeRegistration"`
	CheckoutToken    string           `json:"checkoutToken"`
}

// StripePaymentSuccess handles POST /events/:eventId/stripe-payment-success.
// Safe to replay: recording is keyed by the payment reference.
func (h *Handler) StripePaymentSuccess(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}

	var body paymentSuccessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_REQUEST"})
		return
	}
	if body.RegistrationData.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registrant email is required", "code": "INVALID_REQUEST"})
		return
	}

	basePrice, err := pricing.ResolveBasePrice(ev, body.Option)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	var paymentRef string
	var finalPrice int64
	if body.FreeRegistration {
		// Never trust the client's word that a registration is free: the
		// discount code must actually zero out the price server-side.
		dc, lookupErr := h.lookupDiscountCode(body.DiscountCode)
		if lookupErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up discount code"})
			return
		}
		result := pricing.ValidateDiscount(dc, basePrice, time.Now())
		if !result.Valid || result.FinalPriceCents != 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Registration is not free", "code": "INVALID_REQUEST"})
			return
		}
		paymentRef = registrations.FreeReferencePrefix + uuid.NewString()
		finalPrice = 0
	} else {
		if body.PaymentIntentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paymentIntentId is required", "code": "INVALID_REQUEST"})
			return
		}
		intent, err := h.Manager.VerifyIntentSucceeded(c.Request.Context(), body.PaymentIntentID)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Could not verify payment status. Do not retry payment; contact support with reference " + body.PaymentIntentID,
				"code":  "VERIFICATION_ERROR",
			})
			return
		}
		paymentRef = body.PaymentIntentID
		// The gateway-side amount is what was actually charged.
		finalPrice = intent.AmountCents
	}

	var discountCode *string
	if body.DiscountCode != "" {
		code := pricing.NormalizeCode(body.DiscountCode)
		discountCode = &code
	}

	reg, err := registrations.RecordPaymentSuccess(c.Request.Context(), h.DB, paymentRef, registrations.Fields{
		FirstName:       body.RegistrationData.FirstName,
		LastName:        body.RegistrationData.LastName,
		Email:           body.RegistrationData.Email,
		Phone:           body.RegistrationData.Phone,
		EventID:         ev.ID,
		Option:          body.Option,
		BasePriceCents:  basePrice,
		FinalPriceCents: finalPrice,
		DiscountCode:    discountCode,
	})
	if err != nil {
		if body.FreeRegistration {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record registration"})
			return
		}
		// Money has moved. This must never look like an ordinary failure.
		h.Log.Error().Err(err).Bool("alert", true).
			Str("payment_intent_id", paymentRef).
			Msg("PAYMENT_SUCCEEDED_RECORD_FAILED: gateway confirmed payment but durable write failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Payment succeeded but the registration could not be recorded. Contact support with reference " + paymentRef,
			"code":  "PAYMENT_SUCCEEDED_RECORD_FAILED",
		})
		return
	}

	h.Manager.CompleteSession(checkout.IntentRequest{
		Email:         body.RegistrationData.Email,
		EventID:       ev.ID,
		Option:        body.Option,
		CheckoutToken: body.CheckoutToken,
	})

	c.JSON(http.StatusOK, gin.H{"registrationId": reg.ID})
}

type cancelIntentRequest struct {
	Option        string `json:"option" binding:"required"`
	Email         string `json:"email" binding:"required"`
	CheckoutToken string `json:"checkoutToken"`
}

// CancelPaymentIntent handles POST /events/:eventId/cancel-payment-intent,
// releasing an abandoned checkout before TTL eviction would.
func (h *Handler) CancelPaymentIntent(c *gin.Context) {
	ev, ok := h.loadEvent(c)
	if !ok {
		return
	}

	var body cancelIntentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "INVALID_REQUEST"})
		return
	}

	_ = h.Manager.CancelPaymentIntent(c.Request.Context(), checkout.IntentRequest{
		Email:         body.Email,
		EventID:       ev.ID,
		Option:        body.Option,
		CheckoutToken: body.CheckoutToken,
	})
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) loadEvent(c *gin.Context) (*events.Event, bool) {
	id, err := strconv.ParseUint(c.Param("eventId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event id", "code": "INVALID_REQUEST"})
		return nil, false
	}
	var ev events.Event
	if err := h.DB.Where("id = ? AND active = ?", uint(id), true).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		}
		return nil, false
	}
	return &ev, true
}

// resolveFinalPrice applies the spec'd precedence: an explicit
// discountedAmount wins (clamped into [0, basePrice]), then a discount code,
// then the base price.
func (h *Handler) resolveFinalPrice(c *gin.Context, basePrice int64, discountedAmount *int64, code string) (int64, *string, bool) {
	var normalized *string
	if code != "" {
		n := pricing.NormalizeCode(code)
		normalized = &n
	}

	if discountedAmount != nil {
		amount := *discountedAmount
		if amount < 0 {
			amount = 0
		}
		if amount > basePrice {
			amount = basePrice
		}
		return amount, normalized, true
	}

	if code == "" {
		return basePrice, nil, true
	}

	dc, err := h.lookupDiscountCode(code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up discount code"})
		return 0, nil, false
	}
	result := pricing.ValidateDiscount(dc, basePrice, time.Now())
	if !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid discount code", "code": "INVALID_REQUEST"})
		return 0, nil, false
	}
	return result.FinalPriceCents, normalized, true
}

// lookupDiscountCode returns nil (not an error) for an unknown code so the
// pure validator can report it invalid.
func (h *Handler) lookupDiscountCode(code string) (*events.DiscountCode, error) {
	var dc events.DiscountCode
	err := h.DB.Where("code = ?", pricing.NormalizeCode(code)).First(&dc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (h *Handler) writeCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkout.ErrSessionLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "A payment attempt is already in progress. Please wait a moment and try again.", "code": "SESSION_LOCKED"})
	case errors.Is(err, checkout.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many payment attempts. Please refresh and try again later.", "code": "TOO_MANY_ATTEMPTS"})
	case errors.Is(err, checkout.ErrCardDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Your card was declined.", "code": "CARD_DECLINED"})
	case errors.Is(err, checkout.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment service temporarily unavailable. Please try again.", "code": "GATEWAY_UNAVAILABLE"})
	default:
		h.Log.Error().Err(err).Msg("create payment intent failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment intent"})
	}
}
