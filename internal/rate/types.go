package rate

import (
	"slices"
	"time"
)

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
)

func (w Window) String() string {
	if w == Minute {
		return "minute"
	}
	return "unknown"
}

func (w Window) Duration() time.Duration {
	return time.Minute
}

// Headers names the response headers a provider reports its limits in.
// Window is the bucket the limit/remaining pair describes. ResetAt holds a
// unix timestamp, RetryAfter holds seconds.
type Headers struct {
	Window     Window
	Limit      string
	Remaining  string
	ResetAt    string
	RetryAfter string
}

// UptimeRobotHeaders is the header set of the Uptime Robot v2 API.
func UptimeRobotHeaders() Headers {
	return Headers{
		Window:     Minute,
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		ResetAt:    "X-RateLimit-Reset",
		RetryAfter: "Retry-After",
	}
}

// Declaration defines a provider's rate limits and header mapping.
type Declaration struct {
	provider string
	limits   map[Window]int
	cacheTTL time.Duration
	headers  Headers
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	d.limits = cloneWindows(d.limits)
	d.limits[window] = limit
	return d
}

// CacheFor serves successful responses for ttl while calls are blocked.
func (d Declaration) CacheFor(ttl time.Duration) Declaration {
	d.cacheTTL = ttl
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) CacheTTL() time.Duration {
	return d.cacheTTL
}

func (d Declaration) Headers() Headers {
	return d.headers
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}

// Budget is a declared limit in a form clients can print.
type Budget struct {
	Window   string `json:"window"`
	Requests int    `json:"requests"`
}

// Budgets lists the declared limits ordered by window.
func (d Declaration) Budgets() []Budget {
	windows := make([]Window, 0, len(d.limits))
	for w := range d.limits {
		windows = append(windows, w)
	}
	slices.Sort(windows)
	out := make([]Budget, 0, len(windows))
	for _, w := range windows {
		out = append(out, Budget{Window: w.String(), Requests: d.limits[w]})
	}
	return out
}

// RateLimited is implemented by plugins that declare limits.
type RateLimited interface {
	RateLimits() Declaration
}

func cloneWindows(in map[Window]int) map[Window]int {
	out := make(map[Window]int, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
