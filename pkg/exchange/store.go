package exchange

import (
	"sync"
	"time"
)

// Store holds the correlation tables described by spec.md Section 3:
// KeyMID and KeyToken for ordinary request/response matching, KeyURI for
// observe relations. An Exchange's KeyToken registration expires after
// Lifetime unless it is removed, refreshed or exempted first.
type Store struct {
	mu       sync.RWMutex
	lifetime time.Duration

	byMID   map[KeyMID]*Exchange
	byToken map[KeyToken]*Exchange
	byURI   map[KeyURI]*Exchange

	timers map[*Exchange]*time.Timer
	exempt map[*Exchange]bool
}

// NewStore creates a Store whose token registrations expire after
// lifetime (spec.md Section 5's EXCHANGE_LIFETIME).
func NewStore(lifetime time.Duration) *Store {
	return &Store{
		lifetime: lifetime,
		byMID:    make(map[KeyMID]*Exchange),
		byToken:  make(map[KeyToken]*Exchange),
		byURI:    make(map[KeyURI]*Exchange),
		timers:   make(map[*Exchange]*time.Timer),
		exempt:   make(map[*Exchange]bool),
	}
}

// RegisterMID inserts ex under key. Registration is idempotent for the
// same Exchange; registering a different Exchange under a live key is
// rejected, since at most one live Exchange may own a KeyMID.
func (s *Store) RegisterMID(key KeyMID, ex *Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byMID[key]; ok && existing != ex {
		return ErrDuplicateMID
	}
	s.byMID[key] = ex
	ex.setMIDKey(key)
	return nil
}

// RegisterToken inserts ex under key and arms (or refreshes) the
// exchange's lifetime expiry timer. A token collision with a different
// live Exchange is rejected with ErrRejectedDuplicateToken.
func (s *Store) RegisterToken(key KeyToken, ex *Exchange) error {
	s.mu.Lock()
	if existing, ok := s.byToken[key]; ok && existing != ex {
		s.mu.Unlock()
		return ErrRejectedDuplicateToken
	}
	s.byToken[key] = ex
	ex.setTokenKey(key)
	s.mu.Unlock()

	s.armExpiry(ex)
	return nil
}

// RegisterURI inserts ex under key, used for observe relations.
func (s *Store) RegisterURI(key KeyURI, ex *Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byURI[key]; ok && existing != ex {
		return ErrDuplicateURI
	}
	s.byURI[key] = ex
	ex.setURIKey(key)
	return nil
}

// FindByMID looks up an Exchange by KeyMID.
func (s *Store) FindByMID(key KeyMID) (*Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.byMID[key]
	return ex, ok
}

// FindByToken looks up an Exchange by KeyToken.
func (s *Store) FindByToken(key KeyToken) (*Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.byToken[key]
	return ex, ok
}

// FindByURI looks up an Exchange by KeyURI.
func (s *Store) FindByURI(key KeyURI) (*Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.byURI[key]
	return ex, ok
}

// RemoveMID removes only the KeyMID entry, used once an ACK/RST has been
// matched or MAX_RETRANSMIT attempts have elapsed (spec.md Section 5,
// invariant 1). It leaves the KeyToken and KeyURI entries untouched.
func (s *Store) RemoveMID(key KeyMID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byMID, key)
}

// RemoveURI removes only the KeyURI entry, used when an observation is
// canceled but the owning exchange is otherwise still live.
func (s *Store) RemoveURI(key KeyURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byURI, key)
}

// ExemptFromEviction stops ex's lifetime timer, used while an observe
// relation keeps it alive past the ordinary exchange lifetime.
func (s *Store) ExemptFromEviction(ex *Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exempt[ex] = true
	if t, ok := s.timers[ex]; ok {
		t.Stop()
		delete(s.timers, ex)
	}
}

// UnexemptFromEviction re-arms ex's lifetime timer, used when an
// observation is canceled.
func (s *Store) UnexemptFromEviction(ex *Exchange) {
	s.mu.Lock()
	delete(s.exempt, ex)
	s.mu.Unlock()
	s.armExpiry(ex)
}

func (s *Store) armExpiry(ex *Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exempt[ex] {
		return
	}
	if t, ok := s.timers[ex]; ok {
		t.Stop()
	}
	s.timers[ex] = time.AfterFunc(s.lifetime, func() {
		s.expire(ex)
	})
}

func (s *Store) expire(ex *Exchange) {
	s.Remove(ex)
	ex.Complete()
}

// Remove deletes ex from every table it is registered under and disarms
// its expiry timer. Safe to call more than once.
func (s *Store) Remove(ex *Exchange) {
	midKey, tokenKey, uriKey := ex.keys()

	s.mu.Lock()
	if midKey != nil {
		if cur, ok := s.byMID[*midKey]; ok && cur == ex {
			delete(s.byMID, *midKey)
		}
	}
	if tokenKey != nil {
		if cur, ok := s.byToken[*tokenKey]; ok && cur == ex {
			delete(s.byToken, *tokenKey)
		}
	}
	if uriKey != nil {
		if cur, ok := s.byURI[*uriKey]; ok && cur == ex {
			delete(s.byURI, *uriKey)
		}
	}
	if t, ok := s.timers[ex]; ok {
		t.Stop()
		delete(s.timers, ex)
	}
	delete(s.exempt, ex)
	s.mu.Unlock()
}

// TokenCount returns the number of exchanges currently tracked by the
// token table, for tests and diagnostics.
func (s *Store) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}
