package streamclient

import "time"

// Reconnect defaults.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Backoff yields min(Initial*2^(n-1), Max) for the n-th consecutive failure.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	n       int
}

// NewBackoff returns a Backoff; non-positive values use the defaults.
func NewBackoff(initial, ceiling time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxDelay
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &Backoff{Initial: initial, Max: ceiling}
}

// Next records a failure and returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.n++
	d := b.Initial
	for i := 1; i < b.n; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Attempt returns the number of consecutive failures.
func (b *Backoff) Attempt() int { return b.n }

// Reset is called after a successful connection.
func (b *Backoff) Reset() { b.n = 0 }
