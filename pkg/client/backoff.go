package client

import (
	"math/rand"
	"sync"
	"time"
)

// randSource is the subset of math/rand the backoff needs; tests inject a
// deterministic one.
type randSource interface {
	Float64() float64
}

// backoff produces the delay schedule between reconnection attempts:
// exponential doubling from a base delay, capped at a maximum, with each
// delay scaled by a random factor in [0.5, 1.0) so a fleet of clients
// losing the same server does not stampede back in lockstep.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int // 0 means unlimited
	rng         randSource

	mu      sync.Mutex
	attempt int
}

func newBackoff(base, max time.Duration, maxAttempts int, rng randSource) *backoff {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &backoff{base: base, max: max, maxAttempts: maxAttempts, rng: rng}
}

// Next consumes one attempt and returns the delay before it. The second
// return is false once the attempt budget is exhausted; the caller must
// then stop retrying.
func (b *backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		return 0, false
	}
	d := b.base
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d >= b.max || d < 0 {
			d = b.max
			break
		}
	}
	if d > b.max {
		d = b.max
	}
	b.attempt++
	return time.Duration(float64(d) * (0.5 + 0.5*b.rng.Float64())), true
}

// Attempts returns how many attempts Next has handed out since the last
// Reset.
func (b *backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset clears the attempt count after a successful connection so the next
// outage starts from the base delay again.
func (b *backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}
