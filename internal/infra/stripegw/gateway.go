// Package stripegw adapts the Stripe PaymentIntents API to the narrow
// gateway surface the checkout core consumes.
package stripegw

import (
	"context"
	"errors"
	"fmt"

	"ringside-app/internal/checkout"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/paymentintent"
)

type Gateway struct{}

// New configures the stripe client key globally (the stripe-go idiom) and
// returns the adapter.
func New(secretKey string) *Gateway {
	stripe.Key = secretKey
	return &Gateway{}
}

func (g *Gateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*checkout.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return fromStripe(pi), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (*checkout.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, classify(err)
	}
	return fromStripe(pi), nil
}

func (g *Gateway) CancelIntent(ctx context.Context, id, reason string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(normalizeCancelReason(reason)),
	}
	params.Context = ctx
	if _, err := paymentintent.Cancel(id, params); err != nil {
		return classify(err)
	}
	return nil
}

func fromStripe(pi *stripe.PaymentIntent) *checkout.Intent {
	return &checkout.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
	}
}

// classify maps stripe errors onto the checkout taxonomy: card errors are
// terminal for the intent, invalid requests never warrant a retry, and
// everything else is treated as transient.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", checkout.ErrGatewayUnavailable, err)
	}
	switch {
	case se.Type == stripe.ErrorTypeCard || se.Code == stripe.ErrorCodeCardDeclined:
		return fmt.Errorf("%w: %s", checkout.ErrCardDeclined, se.Msg)
	case se.Type == stripe.ErrorTypeInvalidRequest:
		return fmt.Errorf("%w: %s", checkout.ErrInvalidRequest, se.Msg)
	default:
		return fmt.Errorf("%w: %s", checkout.ErrGatewayUnavailable, se.Msg)
	}
}

// normalizeCancelReason maps the manager's semantic reasons onto the fixed
// set Stripe accepts for cancellation_reason.
func normalizeCancelReason(reason string) string {
	switch reason {
	case "requested_by_customer", "abandoned", "duplicate", "fraudulent":
		return reason
	default:
		// Superseded intents are duplicates of the replacement.
		return "duplicate"
	}
}
