package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/security"
)

// RateLimiter is a sliding-window request counter per key
type RateLimiter struct {
	name     string
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(name string, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		name:     name,
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Name returns the route group this limiter guards
func (rl *RateLimiter) Name() string { return rl.name }

// Limit returns the requests allowed per window
func (rl *RateLimiter) Limit() int { return rl.limit }

// Take records a request for key if the budget allows it. It returns
// whether the request is allowed, the budget left and when the oldest
// counted request leaves the window.
func (rl *RateLimiter) Take(key string) (allowed bool, remaining int, reset time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	history := rl.prune(key, now)

	if len(history) >= rl.limit {
		return false, 0, history[0].Add(rl.window)
	}

	history = append(history, now)
	rl.requests[key] = history
	return true, rl.limit - len(history), history[0].Add(rl.window)
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow(key string) bool {
	allowed, _, _ := rl.Take(key)
	return allowed
}

// Remaining returns the number of remaining requests
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limit - len(rl.prune(key, rl.now()))
}

// Reset resets the rate limit for a key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// prune drops timestamps older than the window; callers hold mu
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	history := rl.requests[key]
	cutoff := now.Add(-rl.window)

	i := 0
	for i < len(history) && !history[i].After(cutoff) {
		i++
	}
	history = history[i:]
	if len(history) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = history
	return history
}

// cleanup removes idle keys periodically
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key := range rl.requests {
				rl.prune(key, now)
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware limits requests per client IP
func RateLimitMiddleware(limiter *RateLimiter, events *security.EventLog, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := security.ClientIP(r, trustProxy)

			allowed, remaining, reset := limiter.Take(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(reset).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				events.Log(r, security.EventRateLimited, map[string]interface{}{
					"limiter": limiter.Name(),
					"limit":   limiter.Limit(),
				})

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error":  "Rate limit exceeded",
					"status": "error",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitStage wraps the limiter as a pipeline stage
func RateLimitStage(limiter *RateLimiter, events *security.EventLog, trustProxy bool) Stage {
	return Stage{Name: StageRateLimit, Wrap: RateLimitMiddleware(limiter, events, trustProxy)}
}
