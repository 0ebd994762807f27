package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

type Bucket struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

func (b Bucket) Enabled() bool {
	return b.RequestsPerMinute > 0 && b.BurstSize > 0
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error)
}

// TokenBucketLimiter keeps per-subject buckets in process memory. The stub
// backend runs as a single instance, so there is no shared store to
// coordinate with. Idle buckets are pruned once they have been untouched
// long enough to have refilled to capacity anyway.
type TokenBucketLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucketState
	lastPrune time.Time
	now       func() time.Time
}

type bucketState struct {
	tokens float64
	ts     int64 // ms of last refill
	ttl    time.Duration
}

const pruneEvery = 30 * time.Second

func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(ctx context.Context, scope string, subject string, bucket Bucket) (Decision, error) {
	if l == nil || !bucket.Enabled() {
		return Decision{Allowed: true}, nil
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "unknown"
	}
	key := fmt.Sprintf("%s:%s", scope, sha256Hex(subject))

	ratePerSec := float64(bucket.RequestsPerMinute) / 60.0
	capacity := float64(bucket.BurstSize)
	now := l.now().UTC()
	nowMS := now.UnixMilli()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)

	st, ok := l.buckets[key]
	if !ok {
		st = &bucketState{tokens: capacity, ts: nowMS}
		l.buckets[key] = st
	}
	if nowMS < st.ts {
		st.ts = nowMS
	}
	elapsed := float64(nowMS - st.ts)
	st.tokens = math.Min(capacity, st.tokens+elapsed*(ratePerSec/1000.0))
	st.ts = nowMS
	st.ttl = stateTTL(ratePerSec, capacity)

	if st.tokens >= 1.0 {
		st.tokens -= 1.0
		return Decision{Allowed: true}, nil
	}

	retryAfter := 60 * time.Second
	if ratePerSec > 0 {
		needed := 1.0 - st.tokens
		secs := math.Ceil(needed / ratePerSec)
		if secs < 1 {
			secs = 1
		}
		retryAfter = time.Duration(secs) * time.Second
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// pruneLocked sweeps expired buckets at most once per pruneEvery. Must be
// called with the mutex held.
func (l *TokenBucketLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < pruneEvery {
		return
	}
	l.lastPrune = now
	nowMS := now.UnixMilli()
	for key, st := range l.buckets {
		if nowMS-st.ts > st.ttl.Milliseconds() {
			delete(l.buckets, key)
		}
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// stateTTL bounds how long idle bucket state is kept: roughly two
// refill-to-full cycles, clamped between 30 seconds and an hour.
func stateTTL(ratePerSec float64, capacity float64) time.Duration {
	const minTTL = 30 * time.Second
	const maxTTL = 1 * time.Hour

	if ratePerSec <= 0 || capacity <= 0 {
		return 2 * time.Minute
	}

	fillSeconds := capacity / ratePerSec
	ttl := time.Duration(math.Ceil(fillSeconds*2.0))*time.Second + 5*time.Second

	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}
	return ttl
}
