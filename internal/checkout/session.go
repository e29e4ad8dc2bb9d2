package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL bounds how long a session (locked or not) survives. An
	// abandoned checkout unlocks itself by eviction.
	DefaultTTL = 15 * time.Minute

	// DefaultMaxAttempts caps intent-creation attempts per session.
	DefaultMaxAttempts = 3

	// keyBucket groups repeated submissions without a client token into the
	// same checkout attempt.
	keyBucket = 5 * time.Minute
)

// DeriveSessionKey produces the reconciliation key for one logical checkout
// attempt. With a client-supplied checkout token the key is stable for the
// whole browser session; without one it falls back to a 5-minute time bucket,
// so a retry after expiry lands on a fresh key by design.
func DeriveSessionKey(email string, eventID uint, option, checkoutToken string, now time.Time) string {
	disambiguator := checkoutToken
	if strings.TrimSpace(disambiguator) == "" {
		disambiguator = fmt.Sprintf("b%d", now.Unix()/int64(keyBucket.Seconds()))
	}
	raw := fmt.Sprintf("%s|%d|%s|%s", strings.ToLower(strings.TrimSpace(email)), eventID, option, disambiguator)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// AcquireOutcome is the result of an atomic check-and-lock on a session key.
type AcquireOutcome int

const (
	// Acquired: the caller now holds the lock and may create an intent.
	Acquired AcquireOutcome = iota
	// HeldWithIntent: another request locked the session and already stored
	// an intent; the snapshot should be returned verbatim.
	HeldWithIntent
	// HeldNoIntent: a concurrent request is mid-flight with nothing stored
	// yet. The caller must back off, not compete.
	HeldNoIntent
	// AttemptsExceeded: the creation ceiling was hit.
	AttemptsExceeded
)

// StoredIntent is the intent reference a session carries between requests.
type StoredIntent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
}

type session struct {
	locked    bool
	attempts  int
	createdAt time.Time
	intent    *StoredIntent

	// generation counts supersede/drop events, scoping gateway idempotency
	// keys so a dropped intent can never be replayed by key reuse.
	generation int
}

// SessionStore tracks in-flight checkout attempts keyed by session key. All
// operations take one mutex so check-then-lock is a single atomic step.
//
// Process-local by construction; a multi-instance deployment needs the same
// contract backed by a shared store (row lock or compare-and-swap).
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session

	ttl         time.Duration
	maxAttempts int
	now         func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSessionStore() *SessionStore {
	s := &SessionStore{
		sessions:    make(map[string]*session),
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Acquire atomically inspects the session for key and, when it is free and
// under the attempt ceiling, locks it and charges one attempt. Exactly one of
// N concurrent callers observes Acquired.
func (s *SessionStore) Acquire(key string) (StoredIntent, AcquireOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveSession(key)
	if sess == nil {
		sess = &session{createdAt: s.now()}
		s.sessions[key] = sess
	}

	if sess.locked {
		if sess.intent != nil {
			return *sess.intent, HeldWithIntent
		}
		return StoredIntent{}, HeldNoIntent
	}

	if sess.attempts >= s.maxAttempts {
		return StoredIntent{}, AttemptsExceeded
	}

	sess.attempts++
	sess.locked = true
	if sess.intent != nil {
		return *sess.intent, Acquired
	}
	return StoredIntent{}, Acquired
}

// SupersedeOutcome is the result of an atomic bid to replace a stored intent.
type SupersedeOutcome int

const (
	// SupersedeWon: the caller cleared the stored intent and may create its
	// replacement. One attempt was charged and the generation bumped.
	SupersedeWon SupersedeOutcome = iota
	// SupersedeLost: another caller already replaced the intent; the returned
	// snapshot is whatever is stored now (possibly nothing yet).
	SupersedeLost
	// SupersedeExceeded: the attempt ceiling forbids a replacement. The
	// returned snapshot is the still-stored stale intent.
	SupersedeExceeded
)

// Supersede atomically claims the right to replace the stored intent whose ID
// is oldIntentID (amount changed mid-checkout). The compare on the intent ID
// makes this a single-winner operation: of N concurrent callers that observed
// the same stale intent, exactly one wins; the rest lose and must back off or
// reuse whatever the winner stored.
func (s *SessionStore) Supersede(key, oldIntentID string) (StoredIntent, SupersedeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.liveSession(key)
	if sess == nil || sess.intent == nil || sess.intent.ID != oldIntentID {
		if sess != nil && sess.intent != nil {
			return *sess.intent, SupersedeLost
		}
		return StoredIntent{}, SupersedeLost
	}
	if sess.attempts >= s.maxAttempts {
		return *sess.intent, SupersedeExceeded
	}

	sess.attempts++
	sess.intent = nil
	sess.generation++
	sess.locked = true
	return StoredIntent{}, SupersedeWon
}

// StoreIntent records the gateway intent against a held session.
func (s *SessionStore) StoreIntent(key string, intent StoredIntent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.liveSession(key); sess != nil {
		sess.intent = &intent
	}
}

// Intent returns the stored intent for key, if any.
func (s *SessionStore) Intent(key string) (StoredIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.liveSession(key)
	if sess == nil || sess.intent == nil {
		return StoredIntent{}, false
	}
	return *sess.intent, true
}

// Unlock releases the lock, keeping the attempt count and stored intent.
// Used on gateway errors so the registrant can retry.
func (s *SessionStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.liveSession(key); sess != nil {
		sess.locked = false
	}
}

// DropIntent forgets the stored intent (it was superseded or went terminal)
// without touching the lock, and bumps the idempotency generation so a fresh
// create cannot collide into the dropped intent gateway-side.
func (s *SessionStore) DropIntent(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.liveSession(key); sess != nil {
		sess.intent = nil
		sess.generation++
	}
}

// Generation returns the supersede counter for key.
func (s *SessionStore) Generation(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.liveSession(key); sess != nil {
		return sess.generation
	}
	return 0
}

// Remove evicts the session on a terminal outcome (success or cancellation).
func (s *SessionStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Close stops the eviction janitor.
func (s *SessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// liveSession returns the session for key, lazily evicting it when expired.
// Callers must hold s.mu.
func (s *SessionStore) liveSession(key string) *session {
	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.createdAt) >= s.ttl {
		delete(s.sessions, key)
		return nil
	}
	return sess
}

func (s *SessionStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			cutoff := s.now().Add(-s.ttl)
			for key, sess := range s.sessions {
				if sess.createdAt.Before(cutoff) {
					delete(s.sessions, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
