package checkout

import "errors"

// Error taxonomy for the checkout flow. Handlers map these onto HTTP status
// codes and stable error codes for the frontend.
var (
	// ErrSessionLocked means a concurrent attempt for the same checkout is
	// mid-flight and has not stored an intent yet. Recoverable; the caller
	// should retry after a short delay instead of racing it.
	ErrSessionLocked = errors.New("session locked")

	// ErrTooManyAttempts means the per-session creation ceiling was hit.
	// Terminal until the session expires.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrCardDeclined is terminal for the intent; the session is unlocked so
	// the registrant can retry with another card.
	ErrCardDeclined = errors.New("card declined")

	// ErrInvalidRequest covers malformed input caught before any gateway call.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrVerificationError means the gateway status of a supposedly-paid
	// intent could not be confirmed. Never treated as success.
	ErrVerificationError = errors.New("could not verify payment status")

	// ErrGatewayUnavailable covers transient gateway failures worth retrying.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrRecordFailed is the distinguished "money moved, durable write
	// failed" state. Escalated, never auto-retried against the gateway.
	ErrRecordFailed = errors.New("payment succeeded but recording failed")
)
