package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the pause before the next poll attempt based on the number
// of consecutive failures and the policy. attempts is expected to be >= 0.
func Delay(policy string, base, limit time.Duration, attempts int, rng *rand.Rand) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case "fixed":
		return min(base, limit)
	case "linear":
		return min(base*time.Duration(max(1, attempts)), limit)
	case "exponential":
		return capped(base, limit, attempts)
	case "exp_equal_jitter":
		d := capped(base, limit, attempts)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	default: // exp_full_jitter
		d := capped(base, limit, attempts)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}

// capped is base*2^attempts clamped to limit, computed in float space so
// large attempt counts cannot overflow the duration.
func capped(base, limit time.Duration, attempts int) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempts))
	if d > float64(limit) {
		return limit
	}
	return time.Duration(d)
}
