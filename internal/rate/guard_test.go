package rate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGuardTokenBucket(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	g := newGuardAt(Provider("test").MaxRequestsPerMinute(60).Burst(2), c.now)

	for i := 0; i < 2; i++ {
		if d := g.Allow(); !d.Allowed {
			t.Fatalf("call %d: expected allowed, got %+v", i, d)
		}
	}

	d := g.Allow()
	if d.Allowed || d.Reason != "budget" {
		t.Fatalf("expected budget refusal, got %+v", d)
	}
	if want := c.t.Add(time.Second); !d.RetryAt.Equal(want) {
		t.Fatalf("expected retry at %s, got %s", want, d.RetryAt)
	}

	c.advance(time.Second)
	if d := g.Allow(); !d.Allowed {
		t.Fatalf("expected refill after one second, got %+v", d)
	}
}

func TestGuardDisabledWithoutLimit(t *testing.T) {
	g := NewGuard(Provider("test"))
	if d := g.Allow(); d.Allowed || d.Reason != "disabled" {
		t.Fatalf("expected disabled, got %+v", d)
	}
}

func TestGuardCooldown(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	g := newGuardAt(Provider("test").MaxRequestsPerMinute(600).CooldownOn429(30*time.Second), c.now)

	h := http.Header{}
	h.Set("Retry-After", "10")
	g.Observe(http.StatusServiceUnavailable, h)
	if d := g.Allow(); d.Allowed || d.Reason != "cooldown" {
		t.Fatalf("expected cooldown, got %+v", d)
	}

	c.advance(11 * time.Second)
	if d := g.Allow(); !d.Allowed {
		t.Fatalf("expected allowed after cooldown, got %+v", d)
	}

	g.Observe(http.StatusTooManyRequests, http.Header{})
	d := g.Allow()
	if d.Allowed || !d.RetryAt.Equal(c.t.Add(30*time.Second)) {
		t.Fatalf("expected default 429 cooldown, got %+v", d)
	}
}

func TestGuardRemainingHeaderDrainsBucket(t *testing.T) {
	c := &clock{t: time.Unix(1700000000, 0)}
	g := newGuardAt(Provider("test").MaxRequestsPerMinute(60), c.now)

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "0")
	g.Observe(http.StatusOK, h)
	if d := g.Allow(); d.Allowed {
		t.Fatalf("expected refusal after provider reported zero remaining")
	}
}

func TestWrapTransport(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	guard := NewGuard(Provider("test").MaxRequestsPerMinute(1))
	client := &http.Client{Transport: WrapTransport(guard, nil)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(server.URL)
	var limited RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if limited.Provider != "test" || limited.Reason != "budget" {
		t.Fatalf("unexpected error: %+v", limited)
	}
	if hits != 1 {
		t.Fatalf("expected one request to reach the server, got %d", hits)
	}
}
