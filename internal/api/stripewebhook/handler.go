package stripewebhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"ringside-app/config"
	"ringside-app/internal/checkout"
	"ringside-app/internal/domain/registrations"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"gorm.io/gorm"
)

// Handler processes Stripe webhook events. The payment_intent.succeeded path
// runs through the same idempotent persister as the frontend success
// callback, so whichever arrives second is a no-op.
type Handler struct {
	DB      *gorm.DB
	Manager *checkout.Manager
	Log     zerolog.Logger
}

func NewHandler(db *gorm.DB, manager *checkout.Manager, log zerolog.Logger) *Handler {
	return &Handler{DB: db, Manager: manager, Log: log}
}

func (h *Handler) StripeWebhook(c *gin.Context) {
	endpointSecret := config.STRIPE_WEBHOOK_SECRET
	if endpointSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRIPE_WEBHOOK_SECRET not configured"})
		return
	}

	payload, err := readStripeBody(c, 65536)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.Log.Warn().Err(err).Msg("stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse payment intent"})
			return
		}
		if err := h.handleSucceeded(c, &pi); err != nil {
			// 500 makes Stripe retry; the recording path is replay-safe.
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "received"})

	case "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse payment intent"})
			return
		}
		// Unlock so the registrant can retry within the attempt ceiling.
		h.Manager.FailSessionByKey(pi.Metadata[checkout.MetadataSessionKey])
		c.JSON(http.StatusOK, gin.H{"status": "received"})

	default:
		// Acknowledge unknown events to avoid retries
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (h *Handler) handleSucceeded(c *gin.Context, pi *stripe.PaymentIntent) error {
	fields := fieldsFromMetadata(pi)
	if fields.Email == "" {
		// Not one of ours (or created before metadata was attached); nothing
		// to reconcile, and retrying will not help.
		h.Log.Warn().Str("intent_id", pi.ID).Msg("payment_intent.succeeded without registrant metadata")
		return nil
	}

	_, err := registrations.RecordPaymentSuccess(c.Request.Context(), h.DB, pi.ID, fields)
	if err != nil {
		h.Log.Error().Err(err).Bool("alert", true).
			Str("payment_intent_id", pi.ID).
			Msg("PAYMENT_SUCCEEDED_RECORD_FAILED: webhook recording failed, will be retried")
		return err
	}

	h.Manager.CompleteSessionByKey(pi.Metadata[checkout.MetadataSessionKey])
	return nil
}

func fieldsFromMetadata(pi *stripe.PaymentIntent) registrations.Fields {
	md := pi.Metadata
	eventID, _ := strconv.ParseUint(md["event_id"], 10, 64)
	basePrice, _ := strconv.ParseInt(md["base_price_cents"], 10, 64)
	return registrations.Fields{
		FirstName:       md["first_name"],
		LastName:        md["last_name"],
		Email:           md["email"],
		Phone:           md["phone"],
		EventID:         uint(eventID),
		Option:          md["option"],
		BasePriceCents:  basePrice,
		FinalPriceCents: pi.Amount,
	}
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
