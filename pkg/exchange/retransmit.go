package exchange

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/backkem/coap/pkg/config"
)

// RetransmitTimer arms and disarms the single outstanding retransmission
// timer a CON exchange may have at a time (spec.md Section 5: "the matcher
// holds a KeyMID entry until either an ACK/RST is received for it or
// MAX_RETRANSMIT attempts have elapsed"). The ReliabilityLayer owns one
// per exchange, stored in Exchange.ReliabilityState.
type RetransmitTimer struct {
	mu       sync.Mutex
	backoff  backoff.BackOff
	timer    *time.Timer
	attempts int
}

// NewRetransmitTimer creates a RetransmitTimer using cfg's AckTimeout,
// AckRandomFactor and MaxRetransmit.
func NewRetransmitTimer(cfg *config.Config) *RetransmitTimer {
	return &RetransmitTimer{backoff: NewRetransmitBackoff(cfg)}
}

// Schedule arms the timer to invoke onTimeout after the next backoff
// interval and returns true, or returns false without arming anything once
// MaxRetransmit attempts have already elapsed.
func (t *RetransmitTimer) Schedule(onTimeout func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.backoff.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t.attempts++
	t.timer = time.AfterFunc(d, onTimeout)
	return true
}

// Stop cancels the pending timer, if any. Safe to call after the timer has
// already fired.
func (t *RetransmitTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Attempts returns the number of retransmissions scheduled so far.
func (t *RetransmitTimer) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}
