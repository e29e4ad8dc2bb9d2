package checkout

import "context"

// Intent statuses, normalized from the gateway's vocabulary.
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusSucceeded             = "succeeded"
	IntentStatusCanceled              = "canceled"
	IntentStatusFailed                = "failed"
)

// Intent is the gateway-side payment intent as seen by this system. The
// client secret is opaque and belongs to the gateway.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
}

// Terminal reports whether an intent can no longer be confirmed by a client.
func (i Intent) Terminal() bool {
	switch i.Status {
	case IntentStatusSucceeded, IntentStatusCanceled, IntentStatusFailed:
		return true
	}
	return false
}

// Gateway is the narrow payment-processor surface the checkout core consumes.
// Implementations must honor idempotency keys on creation so a retried
// request cannot mint two gateway-side intents.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id, reason string) error
}
