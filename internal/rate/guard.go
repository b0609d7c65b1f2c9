package rate

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Decision is the outcome of asking the guard for a request slot.
type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

// Guard enforces a Declaration with a token bucket plus provider cooldowns.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	cooldown time.Time
}

// NewGuard returns a guard with a full bucket.
func NewGuard(decl Declaration) *Guard {
	return newGuardAt(decl, time.Now)
}

func newGuardAt(decl Declaration, now func() time.Time) *Guard {
	return &Guard{
		decl:   decl,
		now:    now,
		tokens: float64(decl.capacity()),
		last:   now(),
	}
}

// Allow consumes a request slot when one is available.
func (g *Guard) Allow() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.decl.perMinute <= 0 {
		return Decision{Reason: "disabled"}
	}
	if now.Before(g.cooldown) {
		return Decision{Reason: "cooldown", RetryAt: g.cooldown}
	}

	rate := float64(g.decl.perMinute) / time.Minute.Seconds()
	g.tokens = min(float64(g.decl.capacity()), g.tokens+now.Sub(g.last).Seconds()*rate)
	g.last = now
	if g.tokens < 1 {
		wait := time.Duration((1 - g.tokens) / rate * float64(time.Second))
		return Decision{Reason: "budget", RetryAt: now.Add(wait)}
	}
	g.tokens--
	tokensGauge.WithLabelValues(g.decl.provider).Set(g.tokens)
	return Decision{Allowed: true}
}

// Observe records provider feedback from a response.
func (g *Guard) Observe(status int, header http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	lastStatusGauge.WithLabelValues(g.decl.provider).Set(float64(status))

	if remaining, ok := headerInt(header, g.decl.headers.Remaining); ok && remaining == 0 {
		g.tokens = 0
	}

	wait := time.Duration(0)
	if seconds, ok := headerInt(header, g.decl.headers.RetryAfter); ok && seconds > 0 {
		wait = time.Duration(seconds) * time.Second
	} else if status == http.StatusTooManyRequests {
		wait = g.decl.retryAfter
	}
	if wait > 0 {
		g.cooldown = now.Add(wait)
		retryAfterGauge.WithLabelValues(g.decl.provider).Set(wait.Seconds())
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	value := h.Get(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WrapTransport returns a RoundTripper that asks guard before every request.
func WrapTransport(guard *Guard, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, guard: guard}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.Allow()
	if !decision.Allowed {
		refusedCounter.WithLabelValues(rt.guard.decl.provider, decision.Reason).Inc()
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.provider,
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	rt.guard.Observe(resp.StatusCode, resp.Header)
	return resp, nil
}
