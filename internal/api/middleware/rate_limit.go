package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"prettyqr/internal/pkg/errors"
)

type RateLimiter struct {
	store *sync.Map // map[string]*Bucket
	clock clockwork.Clock
}

type Bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
	// We need to know when it was last accessed to clean it up
	lastAccess time.Time
}

func NewRateLimiter(clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		store: &sync.Map{},
		clock: clock,
	}
}

// Cleanup drops buckets not accessed within idle and returns how many were
// removed.
func (rl *RateLimiter) Cleanup(now time.Time, idle time.Duration) int {
	removed := 0
	rl.store.Range(func(key, value interface{}) bool {
		bucket := value.(*Bucket)
		bucket.mu.Lock()
		if now.Sub(bucket.lastAccess) > idle {
			rl.store.Delete(key)
			removed++
		}
		bucket.mu.Unlock()
		return true
	})
	return removed
}

// Allow takes a token from the bucket for key, refilling at limit tokens per
// minute.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := rl.clock.Now()

	val, _ := rl.store.LoadOrStore(key, &Bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	bucket := val.(*Bucket)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.lastAccess = now

	// Refill bucket
	elapsed := now.Sub(bucket.lastRefill)

	// Rate is limit / 60 seconds
	refillRate := float64(limit) / 60.0
	refillTokens := int(elapsed.Seconds() * refillRate)

	if refillTokens > 0 {
		if bucket.tokens+refillTokens > limit {
			bucket.tokens = limit
		} else {
			bucket.tokens += refillTokens
		}
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}

	return false
}

// Limit rate limits next per session, falling back to the client address
// for requests without one. A non-positive limit disables limiting.
func (rl *RateLimiter) Limit(limitType string, limit int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if limit <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			var key string
			if session := SessionFrom(r); session != nil {
				key = fmt.Sprintf("%s:%s", session.ID, limitType)
			} else {
				key = fmt.Sprintf("%s:%s", r.RemoteAddr, limitType)
			}

			if !rl.Allow(key, limit) {
				log.Warn().Str("key", key).Int("limit", limit).Msg("rate limit exceeded")
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}
