package remoteserver

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures the per-subject token bucket. A zero Rate disables limiting.
type RateLimit struct {
	Rate  float64 // tokens per second
	Burst int
}

type subjectLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one limiter per subject. Idle subjects are pruned on access.
type rateLimiter struct {
	mu        sync.Mutex
	cfg       RateLimit
	subjects  map[string]*subjectLimiter
	now       func() time.Time
	lastPrune time.Time
}

const subjectIdleTTL = time.Hour

func newRateLimiter(cfg RateLimit, now func() time.Time) *rateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &rateLimiter{
		cfg:       cfg,
		subjects:  make(map[string]*subjectLimiter),
		now:       now,
		lastPrune: now(),
	}
}

// allow takes a token for subject. When none is available it returns the
// wait until the next one, and nothing is consumed.
func (rl *rateLimiter) allow(subject string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastPrune) > subjectIdleTTL {
		for k, s := range rl.subjects {
			if now.Sub(s.lastSeen) > subjectIdleTTL {
				delete(rl.subjects, k)
			}
		}
		rl.lastPrune = now
	}
	s, ok := rl.subjects[subject]
	if !ok {
		s = &subjectLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst)}
		rl.subjects[subject] = s
	}
	s.lastSeen = now
	rl.mu.Unlock()

	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// rateLimitMiddleware answers 429 with Retry-After once a subject's bucket is empty.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.limiter.allow(Subject(r.Context()))
		if !ok {
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
