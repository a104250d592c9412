package uptimerobot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/rate"
)

const requestTimeout = 10 * time.Second

var (
	// ErrAuthentication is returned when the API rejects the key.
	ErrAuthentication = errors.New("uptime robot authentication failed")
	// ErrConnection wraps transport failures and non-2xx replies.
	ErrConnection = errors.New("cannot connect to uptime robot")
)

// APIError is a stat=fail reply that is not an authentication failure.
type APIError struct {
	Method  string
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("uptime robot %s: %s", e.Method, e.Type)
	}
	return fmt.Sprintf("uptime robot %s: %s: %s", e.Method, e.Type, e.Message)
}

var encoder = schema.NewEncoder()

// RateLimits is the request budget shared by every key the plugin polls.
func RateLimits(cfg *config.UptimeRobotConfig) rate.Declaration {
	return rate.Provider("uptimerobot").
		MaxRequestsPer(rate.Minute, cfg.RequestsPerMinute).
		ReadHeaders(rate.UptimeRobotHeaders())
}

// NewHTTPClient builds the rate-guarded HTTP client for cfg.
func NewHTTPClient(cfg *config.UptimeRobotConfig) *http.Client {
	return rate.WrapHTTP(RateLimits(cfg), &http.Client{Timeout: requestTimeout})
}

// Client calls the Uptime Robot v2 API with one API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if baseURL == "" {
		baseURL = config.DefaultUptimeRobotBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Monitors lists every monitor of the account.
func (c *Client) Monitors(ctx context.Context) ([]Monitor, error) {
	var env envelope
	if err := c.post(ctx, "getMonitors", &env); err != nil {
		return nil, err
	}
	if env.Monitors == nil {
		return []Monitor{}, nil
	}
	return env.Monitors, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	var env envelope
	if err := c.post(ctx, "getAccountDetails", &env); err != nil {
		return Account{}, err
	}
	if env.Account == nil {
		return Account{}, &APIError{Method: "getAccountDetails", Type: "missing_account"}
	}
	return *env.Account, nil
}

func (c *Client) post(ctx context.Context, method string, env *envelope) error {
	form := url.Values{}
	if err := encoder.Encode(requestForm{APIKey: c.apiKey, Format: "json"}, form); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrConnection, method, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", ErrAuthentication, method, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s: %s", ErrConnection, method, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, env); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if env.Stat == statOK {
		return nil
	}
	body := apiErrorBody{Type: "unknown"}
	if env.Error != nil {
		body = *env.Error
	}
	if body.Type == errInvalidParam && body.ParameterName == paramAPIKey {
		return fmt.Errorf("%w: %s", ErrAuthentication, method)
	}
	return &APIError{Method: method, Type: body.Type, Message: body.Message}
}
