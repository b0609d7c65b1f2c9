package rate

import (
	"fmt"
	"time"
)

// Headers names the provider headers that report remaining budget.
type Headers struct {
	Remaining  string
	RetryAfter string
}

// StandardHeaders returns the header mapping most providers use.
func StandardHeaders() Headers {
	return Headers{
		Remaining:  "X-RateLimit-Remaining",
		RetryAfter: "Retry-After",
	}
}

// Declaration describes a provider's request budget.
type Declaration struct {
	provider   string
	perMinute  int
	burst      int
	headers    Headers
	retryAfter time.Duration
}

// Provider starts a declaration for the named provider.
func Provider(name string) Declaration {
	return Declaration{provider: name, headers: StandardHeaders()}
}

func (d Declaration) ProviderName() string { return d.provider }

// MaxRequestsPerMinute sets the sustained request rate. Zero disables calls.
func (d Declaration) MaxRequestsPerMinute(limit int) Declaration {
	d.perMinute = limit
	return d
}

// Burst caps how many requests may go out back to back. It defaults to the per-minute limit.
func (d Declaration) Burst(n int) Declaration {
	d.burst = n
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

// CooldownOn429 sets the pause applied after a 429 without a Retry-After header.
func (d Declaration) CooldownOn429(wait time.Duration) Declaration {
	d.retryAfter = wait
	return d
}

func (d Declaration) capacity() int {
	if d.burst > 0 {
		return d.burst
	}
	return d.perMinute
}

// RateLimitError is returned when a request is refused before reaching the provider.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}
