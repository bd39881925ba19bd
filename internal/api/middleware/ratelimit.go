package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/insightx/internal/api/response"
	"github.com/kiranshivaraju/insightx/internal/cache"
	"github.com/kiranshivaraju/insightx/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 10
	rateWindow               = 60 * time.Second
)

// RateLimit limits requests per client per minute. Counters live in the
// shared cache when one is configured, otherwise in a per-process token
// bucket per client.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	metrics        *metrics.Metrics

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimit creates a new RateLimit middleware. c and m may be nil.
func NewRateLimit(c cache.Cache, requestsPerMin int, m *metrics.Metrics) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		cache:          c,
		requestsPerMin: requestsPerMin,
		metrics:        m,
		buckets:        make(map[string]*rate.Limiter),
	}
}

// Limit applies rate limiting keyed by the client id set by Auth, falling
// back to the remote IP.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)

		var remaining int
		var allowed bool
		if rl.cache != nil {
			count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(client), rateWindow)
			if err != nil {
				// Fail open: a cache outage must not take the API down.
				next.ServeHTTP(w, r)
				return
			}
			remaining = rl.requestsPerMin - int(count)
			allowed = count <= int64(rl.requestsPerMin)
		} else {
			lim := rl.bucket(client)
			allowed = lim.Allow()
			remaining = int(lim.Tokens())
		}
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rateWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if !allowed {
			rl.metrics.IncRateLimited()
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) bucket(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.buckets[client]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rateWindow/time.Duration(rl.requestsPerMin)), rl.requestsPerMin)
		rl.buckets[client] = lim
	}
	return lim
}

func clientKey(r *http.Request) string {
	if id, ok := GetClientID(r); ok {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
