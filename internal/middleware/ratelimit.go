package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's bucket is kept after its last
// request. A bucket idle this long has refilled, so dropping it changes
// nothing for the client.
const limiterIdleTTL = 10 * time.Minute

// RateLimit returns per-client rate limiting middleware using token buckets.
// Clients are identified by the API key set by APIKeyAuth, or by IP address
// when the API is open.
//
// Each client's bucket fills at rps tokens/sec up to burst tokens, and every
// request takes one. An empty bucket means 429. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newLimiterSet(rps, burst, time.Now)

	return func(c *gin.Context) {
		client := "ip:" + c.ClientIP()
		if key := c.GetString(ContextKeyAPIKey); key != "" {
			client = "key:" + key
		}

		if !limiters.allow(client) {
			abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, slow down")
			return
		}

		c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one bucket per client and drops buckets that have been
// idle for longer than idleTTL. Sweeps run on access, at most once per
// idleTTL, so the map stays bounded by the clients seen in that window.
type limiterSet struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]*clientLimiter
}

func newLimiterSet(rps float64, burst int, now func() time.Time) *limiterSet {
	if burst < 1 {
		burst = 1
	}
	idleTTL := limiterIdleTTL
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idleTTL {
		idleTTL = refill
	}
	return &limiterSet{
		rps:       rate.Limit(rps),
		burst:     burst,
		idleTTL:   idleTTL,
		now:       now,
		lastSweep: now(),
		clients:   make(map[string]*clientLimiter),
	}
}

// allow takes one token from client's bucket.
func (s *limiterSet) allow(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idleTTL {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) >= s.idleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}
