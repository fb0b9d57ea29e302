package exchange

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/backkem/coap/pkg/config"
)

// NewRetransmitBackoff returns a backoff.BackOff reproducing RFC 7252's CON
// retransmission timing: ACK_TIMEOUT * U(1, ACK_RANDOM_FACTOR) on the first
// attempt, doubling on each subsequent one, capped at cfg.MaxRetransmit
// retries (RFC 7252 Section 4.2).
//
// ExponentialBackOff jitters symmetrically around its current interval
// (currentInterval ± currentInterval*RandomizationFactor), which has no
// direct RandomizationFactor for an asymmetric, always-at-least-1x range
// like RFC 7252's. Centering the interval at the midpoint of [AckTimeout,
// AckTimeout*AckRandomFactor] and sizing the jitter to exactly reach both
// ends reproduces the same range without ever dropping below AckTimeout;
// the transform is scale-invariant, so it stays correct across Multiplier's
// doubling too.
func NewRetransmitBackoff(cfg *config.Config) backoff.BackOff {
	f := cfg.AckRandomFactor

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(float64(cfg.AckTimeout) * (1 + f) / 2)
	eb.Multiplier = 2
	eb.RandomizationFactor = (f - 1) / (f + 1)
	eb.MaxElapsedTime = 0 // bounded by WithMaxRetries instead of elapsed time
	eb.Reset()

	return backoff.WithMaxRetries(eb, uint64(cfg.MaxRetransmit))
}
