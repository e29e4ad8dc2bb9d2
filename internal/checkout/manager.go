// Package checkout implements the payment-session reconciliation core: a
// keyed session store with atomic check-and-lock, and the intent manager that
// guarantees at most one live gateway intent per checkout attempt.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// MetadataSessionKey is set on every gateway intent so webhook events can be
// routed back to the originating session.
const MetadataSessionKey = "session_key"

const currency = "usd"

// IntentRequest describes one checkout attempt. AmountCents is the final
// (post-discount) amount; zero means a free registration.
type IntentRequest struct {
	Email         string
	EventID       uint
	Option        string
	CheckoutToken string
	AmountCents   int64
	Metadata      map[string]string
}

// IntentResult is exactly one of: a free-registration marker, a reused
// in-flight intent, or a freshly created one.
type IntentResult struct {
	FreeRegistration bool
	PaymentIntentID  string
	ClientSecret     string
	AmountCents      int64
	Reused           bool

	// AlreadySucceeded means the stored intent was paid before this request
	// arrived (delayed webhook, reload after confirmation). The caller must
	// route to success recording, never to a fresh charge.
	AlreadySucceeded bool
}

// Manager serializes intent creation per session key against the payment
// gateway.
type Manager struct {
	gateway  Gateway
	sessions *SessionStore
	log      zerolog.Logger
}

func NewManager(gateway Gateway, sessions *SessionStore, log zerolog.Logger) *Manager {
	return &Manager{gateway: gateway, sessions: sessions, log: log}
}

// RequestPaymentIntent produces a payable intent for the request, reusing the
// in-flight one when a duplicate submit or reload hits the same session key.
// Free (zero-amount) requests never reach the gateway except to cancel a
// stale intent they supersede.
func (m *Manager) RequestPaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: registrant email is required", ErrInvalidRequest)
	}
	if req.AmountCents < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	}

	key := m.sessions.Key(req)

	if req.AmountCents == 0 {
		// A discount may have zeroed out a checkout that already holds an
		// intent; that intent must not stay confirmable at the old amount.
		if stored, ok := m.sessions.Intent(key); ok {
			m.cancelStored(ctx, key, stored, "superseded_by_free_registration")
		}
		m.sessions.Remove(key)
		return &IntentResult{FreeRegistration: true}, nil
	}

	stored, outcome := m.sessions.Acquire(key)
	switch outcome {
	case HeldNoIntent:
		return nil, ErrSessionLocked
	case AttemptsExceeded:
		return nil, ErrTooManyAttempts
	case HeldWithIntent:
		if stored.AmountCents == req.AmountCents {
			return m.reusable(ctx, key, stored)
		}
		// Discount applied while an intent is live: supersede, never leave
		// both confirmable. The compare-and-swap on the stored intent ID
		// means exactly one of N concurrent callers wins the replacement.
		current, bid := m.sessions.Supersede(key, stored.ID)
		switch bid {
		case SupersedeLost:
			if current.ID != "" && current.AmountCents == req.AmountCents {
				return m.reusable(ctx, key, current)
			}
			return nil, ErrSessionLocked
		case SupersedeExceeded:
			// The stale intent must not stay confirmable at the old amount.
			m.cancelStored(ctx, key, current, "superseded_by_discount")
			return nil, ErrTooManyAttempts
		}
		m.cancelGateway(ctx, stored.ID, "superseded_by_discount")
	case Acquired:
		if stored.ID != "" {
			if stored.AmountCents != req.AmountCents {
				m.cancelStored(ctx, key, stored, "superseded_by_discount")
				break
			}
			intent, err := m.gateway.RetrieveIntent(ctx, stored.ID)
			if err != nil {
				// The stored intent may still be live; creating another here
				// could leave two confirmable intents for one key.
				m.sessions.Unlock(key)
				return nil, fmt.Errorf("verify stored intent %s: %w", stored.ID, err)
			}
			if !intent.Terminal() || intent.Status == IntentStatusSucceeded {
				return &IntentResult{
					PaymentIntentID:  stored.ID,
					ClientSecret:     stored.ClientSecret,
					AmountCents:      stored.AmountCents,
					Reused:           true,
					AlreadySucceeded: intent.Status == IntentStatusSucceeded,
				}, nil
			}
			m.sessions.DropIntent(key)
		}
	}

	return m.create(ctx, key, req)
}

// reusable returns the stored intent verbatim while the gateway reports it
// non-terminal. This is the idempotent re-delivery path for page reloads and
// duplicate form submits; when the gateway cannot be reached the stored
// secret is still returned, since the client holding it can still confirm.
func (m *Manager) reusable(ctx context.Context, key string, stored StoredIntent) (*IntentResult, error) {
	result := &IntentResult{
		PaymentIntentID: stored.ID,
		ClientSecret:    stored.ClientSecret,
		AmountCents:     stored.AmountCents,
		Reused:          true,
	}

	intent, err := m.gateway.RetrieveIntent(ctx, stored.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("intent_id", stored.ID).
			Msg("could not confirm stored intent status, returning it verbatim")
		return result, nil
	}
	if intent.Status == IntentStatusSucceeded {
		// Paid already (delayed webhook, reload after confirmation). The
		// session stays intact; success recording will evict it.
		result.AlreadySucceeded = true
		return result, nil
	}
	if intent.Terminal() {
		// The flow this lock covered already ended; free the session so the
		// retry that follows this error can proceed.
		m.sessions.DropIntent(key)
		m.sessions.Unlock(key)
		return nil, fmt.Errorf("stored intent %s is terminal (%s)", stored.ID, intent.Status)
	}
	return result, nil
}

func (m *Manager) create(ctx context.Context, key string, req IntentRequest) (*IntentResult, error) {
	metadata := map[string]string{MetadataSessionKey: key}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	// The amount and supersede generation are part of the idempotency key:
	// a crashed retry dedupes gateway-side (same key, same amount, untouched
	// generation), while a superseded or terminal intent can never be
	// replayed into a fresh create.
	idempotencyKey := fmt.Sprintf("%s-%d-g%d", key, req.AmountCents, m.sessions.Generation(key))

	intent, err := m.gateway.CreateIntent(ctx, req.AmountCents, currency, metadata, idempotencyKey)
	if err != nil {
		m.sessions.Unlock(key)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	m.sessions.StoreIntent(key, StoredIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  req.AmountCents,
	})

	// The lock stays held: it covers the window between intent creation and
	// a terminal outcome, not just this response.
	m.log.Info().Str("intent_id", intent.ID).Int64("amount_cents", req.AmountCents).
		Uint("event_id", req.EventID).Str("option", req.Option).
		Msg("payment intent created")

	return &IntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     req.AmountCents,
	}, nil
}

// VerifyIntentSucceeded confirms gateway-side success before anything durable
// is written, returning the confirmed intent. An unreachable or non-succeeded
// intent is a verification error, never treated as paid.
func (m *Manager) VerifyIntentSucceeded(ctx context.Context, intentID string) (*Intent, error) {
	intent, err := m.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationError, err)
	}
	if intent.Status != IntentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent %s has status %s", ErrVerificationError, intentID, intent.Status)
	}
	return intent, nil
}

// CancelPaymentIntent releases a checkout early: the gateway-side intent is
// cancelled and the session evicted, freeing the key before TTL expiry.
func (m *Manager) CancelPaymentIntent(ctx context.Context, req IntentRequest) error {
	key := m.sessions.Key(req)
	if stored, ok := m.sessions.Intent(key); ok {
		if err := m.gateway.CancelIntent(ctx, stored.ID, "requested_by_customer"); err != nil {
			m.log.Warn().Err(err).Str("intent_id", stored.ID).Msg("gateway cancel failed")
		}
	}
	m.sessions.Remove(key)
	return nil
}

// CompleteSession releases the session after a terminal success.
func (m *Manager) CompleteSession(req IntentRequest) {
	m.sessions.Remove(m.sessions.Key(req))
}

// CompleteSessionByKey releases a session identified by the session_key
// metadata carried on the gateway intent (webhook path).
func (m *Manager) CompleteSessionByKey(key string) {
	if key != "" {
		m.sessions.Remove(key)
	}
}

// FailSessionByKey unlocks a session whose intent went terminal without
// succeeding, so the registrant can retry within the attempt ceiling.
func (m *Manager) FailSessionByKey(key string) {
	if key == "" {
		return
	}
	m.sessions.DropIntent(key)
	m.sessions.Unlock(key)
}

func (m *Manager) cancelStored(ctx context.Context, key string, stored StoredIntent, reason string) {
	m.cancelGateway(ctx, stored.ID, reason)
	m.sessions.DropIntent(key)
}

func (m *Manager) cancelGateway(ctx context.Context, intentID, reason string) {
	if err := m.gateway.CancelIntent(ctx, intentID, reason); err != nil {
		m.log.Warn().Err(err).Str("intent_id", intentID).Str("reason", reason).
			Msg("failed to cancel superseded intent")
	}
}

// Key derives the session key for a request.
func (s *SessionStore) Key(req IntentRequest) string {
	return DeriveSessionKey(req.Email, req.EventID, req.Option, req.CheckoutToken, s.now())
}
