package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// fakeGateway counts invocations and honors idempotency keys, which is all
// the reconciliation properties need.
type fakeGateway struct {
	mu sync.Mutex

	createCalls   int
	retrieveCalls int
	cancelCalls   int

	intents map[string]*Intent
	byIdem  map[string]*Intent

	createErr   error
	retrieveErr error

	// onCancel, when set before any concurrency starts, runs at the top of
	// CancelIntent so a test can park a caller mid-cancel.
	onCancel func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents: make(map[string]*Intent),
		byIdem:  make(map[string]*Intent),
	}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	if existing, ok := g.byIdem[idempotencyKey]; ok {
		dup := *existing
		return &dup, nil
	}
	n := len(g.intents) + 1
	intent := &Intent{
		ID:           fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("cs_%d", n),
		Status:       IntentStatusRequiresPaymentMethod,
		AmountCents:  amountCents,
	}
	g.intents[intent.ID] = intent
	g.byIdem[idempotencyKey] = intent
	dup := *intent
	return &dup, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieveCalls++
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such intent %s", id)
	}
	dup := *intent
	return &dup, nil
}

func (g *fakeGateway) CancelIntent(ctx context.Context, id, reason string) error {
	if g.onCancel != nil {
		g.onCancel()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	if intent, ok := g.intents[id]; ok {
		intent.Status = IntentStatusCanceled
	}
	return nil
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = status
}

func (g *fakeGateway) liveIntents() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	live := 0
	for _, intent := range g.intents {
		if !intent.Terminal() {
			live++
		}
	}
	return live
}

func newTestManager(t *testing.T) (*Manager, *fakeGateway, *SessionStore) {
	t.Helper()
	gw := newFakeGateway()
	sessions := NewSessionStore()
	t.Cleanup(sessions.Close)
	return NewManager(gw, sessions, zerolog.Nop()), gw, sessions
}

func testRequest(amount int64) IntentRequest {
	return IntentRequest{
		Email:         "wrestler@example.com",
		EventID:       7,
		Option:        "full",
		CheckoutToken: "tok-abc",
		AmountCents:   amount,
	}
}

func TestRequestPaymentIntent_MissingEmail(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)
	req.Email = "  "

	_, err := m.RequestPaymentIntent(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if gw.createCalls != 0 {
		t.Fatal("gateway contacted for invalid request")
	}
}

func TestZeroAmountShortCircuit(t *testing.T) {
	m, gw, _ := newTestManager(t)

	res, err := m.RequestPaymentIntent(context.Background(), testRequest(0))
	if err != nil {
		t.Fatalf("RequestPaymentIntent: %v", err)
	}
	if !res.FreeRegistration {
		t.Fatal("expected free registration marker")
	}
	if gw.createCalls != 0 || gw.retrieveCalls != 0 || gw.cancelCalls != 0 {
		t.Fatalf("gateway must never be called for a free registration: create=%d retrieve=%d cancel=%d",
			gw.createCalls, gw.retrieveCalls, gw.cancelCalls)
	}
}

func TestNoDoubleIntent_ConcurrentRequests(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	secrets := map[string]int{}
	var lockedErrs int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.RequestPaymentIntent(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, ErrSessionLocked) {
					lockedErrs++
					return
				}
				t.Errorf("unexpected error: %v", err)
				return
			}
			secrets[res.ClientSecret]++
		}()
	}
	wg.Wait()

	if gw.createCalls != 1 {
		t.Fatalf("expected exactly one gateway create, got %d", gw.createCalls)
	}
	if len(secrets) != 1 {
		t.Fatalf("all successful responses must share one client secret, got %d distinct", len(secrets))
	}
	if lockedErrs+sum(secrets) != n {
		t.Fatalf("unaccounted outcomes: locked=%d ok=%d", lockedErrs, sum(secrets))
	}
}

func sum(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

func TestDoubleSubmitSharesClientSecret(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)

	first, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if first.ClientSecret != second.ClientSecret {
		t.Fatal("duplicate submit must return the same client secret")
	}
	if !second.Reused {
		t.Fatal("second response should be marked reused")
	}
	if gw.createCalls != 1 {
		t.Fatalf("expected one create, got %d", gw.createCalls)
	}
}

func TestAttemptCeiling(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)
	gw.createErr = fmt.Errorf("%w: boom", ErrGatewayUnavailable)

	for i := 0; i < DefaultMaxAttempts; i++ {
		if _, err := m.RequestPaymentIntent(context.Background(), req); !errors.Is(err, ErrGatewayUnavailable) {
			t.Fatalf("attempt %d: expected gateway error, got %v", i+1, err)
		}
	}

	_, err := m.RequestPaymentIntent(context.Background(), req)
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if gw.createCalls != DefaultMaxAttempts {
		t.Fatalf("4th attempt must not contact the gateway: %d calls", gw.createCalls)
	}
}

func TestCardDeclinedUnlocksForRetry(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)

	gw.createErr = fmt.Errorf("%w: do not honor", ErrCardDeclined)
	if _, err := m.RequestPaymentIntent(context.Background(), req); !errors.Is(err, ErrCardDeclined) {
		t.Fatalf("expected ErrCardDeclined, got %v", err)
	}

	gw.createErr = nil
	res, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("retry after decline should succeed: %v", err)
	}
	if res.ClientSecret == "" {
		t.Fatal("expected a fresh intent")
	}
}

func TestDiscountRecreationConsistency(t *testing.T) {
	m, gw, _ := newTestManager(t)

	full, err := m.RequestPaymentIntent(context.Background(), testRequest(24900))
	if err != nil {
		t.Fatalf("full-price request: %v", err)
	}

	discounted, err := m.RequestPaymentIntent(context.Background(), testRequest(12450))
	if err != nil {
		t.Fatalf("discounted request: %v", err)
	}

	if discounted.ClientSecret == full.ClientSecret {
		t.Fatal("discounted intent must not reuse the stale client secret")
	}
	if discounted.AmountCents != 12450 {
		t.Fatalf("discounted amount = %d", discounted.AmountCents)
	}
	if gw.cancelCalls != 1 {
		t.Fatalf("stale intent must be cancelled, cancel calls = %d", gw.cancelCalls)
	}
	if live := gw.liveIntents(); live != 1 {
		t.Fatalf("exactly one live intent may exist per key, got %d", live)
	}
}

func TestConcurrentDiscountSupersede_SingleWinner(t *testing.T) {
	m, gw, _ := newTestManager(t)

	first, err := m.RequestPaymentIntent(context.Background(), testRequest(24900))
	if err != nil {
		t.Fatalf("full-price request: %v", err)
	}

	// Park the superseding request inside the gateway cancel so a second
	// request arrives while the replacement is still mid-flight.
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	gw.onCancel = func() {
		entered <- struct{}{}
		<-release
	}

	winner := make(chan *IntentResult, 1)
	go func() {
		res, err := m.RequestPaymentIntent(context.Background(), testRequest(12450))
		if err != nil {
			t.Errorf("superseding request: %v", err)
		}
		winner <- res
	}()
	<-entered

	if _, err := m.RequestPaymentIntent(context.Background(), testRequest(12450)); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("competing supersede must back off with ErrSessionLocked, got %v", err)
	}

	close(release)
	res := <-winner

	if res == nil || res.ClientSecret == first.ClientSecret {
		t.Fatal("winner must hold a fresh client secret")
	}
	if res.AmountCents != 12450 {
		t.Fatalf("winner amount = %d", res.AmountCents)
	}
	if gw.createCalls != 2 {
		t.Fatalf("expected 2 creates (original + one replacement), got %d", gw.createCalls)
	}
	if live := gw.liveIntents(); live != 1 {
		t.Fatalf("exactly one live intent may exist per key, got %d", live)
	}
}

func TestAlternatingAmountsHitCeiling(t *testing.T) {
	m, gw, _ := newTestManager(t)

	if _, err := m.RequestPaymentIntent(context.Background(), testRequest(24900)); err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Every supersede is a creation attempt, so flip-flopping the amount on a
	// locked session must run into the same ceiling as plain retries.
	var ceilingHit bool
	for i, amount := range []int64{12450, 24900, 12450, 24900} {
		_, err := m.RequestPaymentIntent(context.Background(), testRequest(amount))
		if errors.Is(err, ErrTooManyAttempts) {
			ceilingHit = true
			break
		}
		if err != nil {
			t.Fatalf("request %d: %v", i+2, err)
		}
	}

	if !ceilingHit {
		t.Fatal("alternating amounts never hit the attempt ceiling")
	}
	if gw.createCalls > DefaultMaxAttempts {
		t.Fatalf("gateway create calls = %d, ceiling is %d", gw.createCalls, DefaultMaxAttempts)
	}
	if live := gw.liveIntents(); live > 1 {
		t.Fatalf("%d live intents for one key", live)
	}
}

func TestReuseOfSucceededIntentRoutesToRecording(t *testing.T) {
	m, gw, _ := newTestManager(t)
	req := testRequest(24900)

	first, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Webhook hasn't landed yet; the user reloads after paying.
	gw.setStatus(first.PaymentIntentID, IntentStatusSucceeded)

	second, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("reload after payment: %v", err)
	}
	if !second.AlreadySucceeded {
		t.Fatal("paid intent must be surfaced as already succeeded")
	}
	if second.PaymentIntentID != first.PaymentIntentID {
		t.Fatalf("paid checkout returned a different intent: %s vs %s", second.PaymentIntentID, first.PaymentIntentID)
	}
	if gw.createCalls != 1 {
		t.Fatalf("paid checkout must not mint a new intent, create calls = %d", gw.createCalls)
	}
}

func TestDiscountToFreeSupersedesIntent(t *testing.T) {
	m, gw, _ := newTestManager(t)

	if _, err := m.RequestPaymentIntent(context.Background(), testRequest(24900)); err != nil {
		t.Fatalf("full-price request: %v", err)
	}

	res, err := m.RequestPaymentIntent(context.Background(), testRequest(0))
	if err != nil {
		t.Fatalf("free request: %v", err)
	}
	if !res.FreeRegistration {
		t.Fatal("expected free registration")
	}
	if gw.cancelCalls != 1 {
		t.Fatalf("stale intent must be cancelled on the free path, cancel calls = %d", gw.cancelCalls)
	}
	if live := gw.liveIntents(); live != 0 {
		t.Fatalf("no live intent may remain, got %d", live)
	}
}

func TestReuseSkipsTerminalIntent(t *testing.T) {
	m, gw, sessions := newTestManager(t)
	req := testRequest(24900)

	first, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	// The intent failed gateway-side and the session unlocked (webhook path).
	gw.setStatus(first.PaymentIntentID, IntentStatusCanceled)
	sessions.Unlock(sessions.Key(req))

	second, err := m.RequestPaymentIntent(context.Background(), req)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.ClientSecret == first.ClientSecret {
		t.Fatal("terminal intent must not be reused")
	}
	if gw.createCalls != 2 {
		t.Fatalf("expected a fresh create, calls = %d", gw.createCalls)
	}
}

func TestVerifyIntentSucceeded(t *testing.T) {
	m, gw, _ := newTestManager(t)

	res, err := m.RequestPaymentIntent(context.Background(), testRequest(24900))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := m.VerifyIntentSucceeded(context.Background(), res.PaymentIntentID); !errors.Is(err, ErrVerificationError) {
		t.Fatalf("non-succeeded intent must fail verification, got %v", err)
	}

	gw.setStatus(res.PaymentIntentID, IntentStatusSucceeded)
	intent, err := m.VerifyIntentSucceeded(context.Background(), res.PaymentIntentID)
	if err != nil {
		t.Fatalf("verification of succeeded intent: %v", err)
	}
	if intent.AmountCents != 24900 {
		t.Fatalf("amount = %d", intent.AmountCents)
	}

	gw.retrieveErr = errors.New("network down")
	if _, err := m.VerifyIntentSucceeded(context.Background(), res.PaymentIntentID); !errors.Is(err, ErrVerificationError) {
		t.Fatalf("unreachable gateway must be a verification error, got %v", err)
	}
}

func TestCancelPaymentIntent(t *testing.T) {
	m, gw, sessions := newTestManager(t)
	req := testRequest(24900)

	if _, err := m.RequestPaymentIntent(context.Background(), req); err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := m.CancelPaymentIntent(context.Background(), req); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gw.cancelCalls != 1 {
		t.Fatalf("cancel calls = %d", gw.cancelCalls)
	}
	if _, ok := sessions.Intent(sessions.Key(req)); ok {
		t.Fatal("session survived cancellation")
	}
	// Key is immediately reusable, well before TTL eviction.
	if _, err := m.RequestPaymentIntent(context.Background(), req); err != nil {
		t.Fatalf("request after cancel: %v", err)
	}
}
