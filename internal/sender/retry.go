package sender

import (
	"math/rand"
	"time"
)

// ExponentialBackoff spaces out push retries: initial, 2x, 4x... capped at MaxDelay, ±10% jitter.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func NewExponentialBackoff(initial, max time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NextDelay returns the wait before retry number attempt+1 (attempt is 0-based).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay)
	for i := 0; i < attempt && delay < float64(b.MaxDelay); i++ {
		delay *= b.Multiplier
	}
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}

	delay += delay * b.Jitter * (2*rand.Float64() - 1)

	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	return time.Duration(delay)
}
