package gateway

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// stableAfter is how long a connection must survive before the delays
// start over from the base.
const stableAfter = 60 * time.Second

// retryDelay paces reconnects: exponential with up to 50% jitter either way,
// capped at max, never giving up.
type retryDelay struct {
	exp         *backoff.ExponentialBackOff
	attempt     int
	connectedAt time.Time
}

func newRetryDelay(base, max time.Duration) *retryDelay {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.MaxInterval = max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryDelay{exp: exp}
}

func (r *retryDelay) markConnected(now time.Time) {
	r.connectedAt = now
}

// next returns the delay before the following dial. A connection that
// lasted past stableAfter resets the sequence.
func (r *retryDelay) next(now time.Time) time.Duration {
	if !r.connectedAt.IsZero() && now.Sub(r.connectedAt) > stableAfter {
		r.exp.Reset()
		r.attempt = 0
	}
	r.connectedAt = time.Time{}
	r.attempt++
	return r.exp.NextBackOff()
}
