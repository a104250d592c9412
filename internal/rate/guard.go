package rate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
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

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

type cacheEntry struct {
	status  int
	header  http.Header
	body    []byte
	expires time.Time
}

type windowState struct {
	limit      int
	remaining  int
	hasHeaders bool
	bucket     *bucket
}

// Guard enforces rate limits for one provider.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu       sync.Mutex
	windows  map[Window]*windowState
	cooldown time.Time
	cache    map[string]cacheEntry
}

// NewGuard builds a guard with full buckets.
func NewGuard(decl Declaration) *Guard {
	g := &Guard{
		decl:    decl,
		now:     time.Now,
		windows: make(map[Window]*windowState),
		cache:   make(map[string]cacheEntry),
	}
	start := g.now()
	for window, limit := range decl.Limits() {
		g.windows[window] = &windowState{
			limit:     limit,
			remaining: limit,
			bucket:    &bucket{capacity: limit, tokens: float64(limit), last: start},
		}
	}
	return g
}

// WrapHTTP returns a copy of base whose transport is guarded by decl.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	client, _ := Wrap(decl, base)
	return client
}

// Wrap is WrapHTTP that also hands back the guard.
func Wrap(decl Declaration, base *http.Client) (*http.Client, *Guard) {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	guard := NewGuard(decl)
	client.Transport = &roundTripper{base: transport, guard: guard}
	return &client, guard
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	decision := rt.guard.ShouldCall()
	if !decision.Allowed {
		blockedTotal.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		if cached := rt.guard.cachedResponse(req, body); cached != nil {
			return cached, nil
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return rt.guard.maybeCache(req, body, resp)
}

// ShouldCall spends one request from every window, or reports why it cannot.
func (g *Guard) ShouldCall() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.decl.HasLimits() {
		return Decision{Allowed: false, Reason: "disabled"}
	}

	now := g.now()
	if now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, ws := range g.windows {
		if ws.limit <= 0 {
			return Decision{Allowed: false, Reason: "disabled"}
		}
		if ws.hasHeaders {
			if ws.remaining <= 0 {
				return Decision{Allowed: false, Reason: "budget", RetryAt: g.cooldown}
			}
			ws.remaining--
			continue
		}
		if !ws.bucket.take(now, window.Duration()) {
			retryAt := ws.bucket.last.Add(window.Duration() / time.Duration(ws.limit))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	return Decision{Allowed: true}
}

// RecordResponse folds the provider's reported limits into the guard.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	now := g.now()

	if retry := headerInt(headers, cfg.RetryAfter); retry > 0 {
		g.cooldown = now.Add(time.Duration(retry) * time.Second)
		retryAfterGauge.WithLabelValues(provider).Set(float64(retry))
	} else if status == http.StatusTooManyRequests {
		if resetAt := headerInt(headers, cfg.ResetAt); resetAt > 0 {
			g.cooldown = time.Unix(int64(resetAt), 0)
		}
		retryAfterGauge.WithLabelValues(provider).Set(g.cooldown.Sub(now).Seconds())
	}

	remaining := headerInt(headers, cfg.Remaining)
	if remaining < 0 {
		return
	}
	ws, ok := g.windows[cfg.Window]
	if !ok {
		return
	}
	ws.remaining = remaining
	ws.hasHeaders = true
	if limit := headerInt(headers, cfg.Limit); limit > 0 {
		ws.limit = limit
	}
	if remaining <= 0 {
		if resetAt := headerInt(headers, cfg.ResetAt); resetAt > 0 {
			g.cooldown = time.Unix(int64(resetAt), 0)
		} else {
			// No reset hint: fall back to the local bucket.
			ws.hasHeaders = false
		}
	}
	remainingGauge.WithLabelValues(provider, cfg.Window.String()).Set(float64(remaining))
}

func (g *Guard) cachedResponse(req *http.Request, body []byte) *http.Response {
	if g.decl.CacheTTL() <= 0 {
		return nil
	}
	key := cacheKey(req, body)
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[key]
	if !ok || g.now().After(entry.expires) {
		return nil
	}
	return cloneResponse(req, entry.status, entry.header, entry.body)
}

func (g *Guard) maybeCache(req *http.Request, body []byte, resp *http.Response) (*http.Response, error) {
	if g.decl.CacheTTL() <= 0 || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	buf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	clone := cloneResponse(req, resp.StatusCode, resp.Header, buf)

	g.mu.Lock()
	g.cache[cacheKey(req, body)] = cacheEntry{
		status:  resp.StatusCode,
		header:  clone.Header.Clone(),
		body:    buf,
		expires: g.now().Add(g.decl.CacheTTL()),
	}
	g.mu.Unlock()

	return clone, nil
}

func (b *bucket) take(now time.Time, window time.Duration) bool {
	elapsed := now.Sub(b.last).Seconds()
	refill := float64(b.capacity) / window.Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*refill)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func cacheKey(req *http.Request, body []byte) string {
	hash := sha256.Sum256(body)
	return req.Method + " " + req.URL.String() + " " + hex.EncodeToString(hash[:])
}

func cloneResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
