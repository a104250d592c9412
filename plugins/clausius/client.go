package clausius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/gohass/internal/config"
	"go.uber.org/zap"
)

const (
	requestTimeout     = 10 * time.Second
	defaultTemperature = 20
)

// Client talks to a Clausius heating controller and owns the entities built
// from its inventory.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.RWMutex
	sensors  []*TemperatureSensor
	relays   []*RelaySensor
	circuits []*ClimateControl
}

func NewClient(cfg *config.ClausiusConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("clausius base_url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Init reads the inventory and builds one entity per sensor, relay and
// circuit. A failed read is logged and leaves every list empty; Init itself
// never fails.
func (c *Client) Init(ctx context.Context) {
	c.logger.Info("initializing clausius client", zap.String("base_url", c.baseURL))

	inv, err := c.Inventory(ctx)
	if err != nil {
		c.logger.Error("failed to get data from api", zap.Error(err))
		c.mu.Lock()
		c.sensors, c.relays, c.circuits = nil, nil, nil
		c.mu.Unlock()
		return
	}

	sensors := make([]*TemperatureSensor, 0, len(inv.Sensors))
	for _, s := range inv.Sensors {
		sensors = append(sensors, NewTemperatureSensor(s.ID.String(), s.Name.or(s.ID), s.Value.String()))
	}
	relays := make([]*RelaySensor, 0, len(inv.Relays))
	for _, r := range inv.Relays {
		relays = append(relays, NewRelaySensor(r.Code.String(), r.Name.or(r.Code), r.IsOn))
	}
	circuits := make([]*ClimateControl, 0, len(inv.Circuits))
	for _, circuit := range inv.Circuits {
		circuits = append(circuits, NewClimateControl(circuit.Code.String(), defaultTemperature, c))
	}

	c.mu.Lock()
	c.sensors, c.relays, c.circuits = sensors, relays, circuits
	c.mu.Unlock()
	c.logger.Info("clausius inventory loaded",
		zap.Int("sensors", len(sensors)),
		zap.Int("relays", len(relays)),
		zap.Int("circuits", len(circuits)))
}

// Refresh re-reads the inventory and updates sensor values and relay states
// in place. Entities the controller stops reporting, or reports for the first
// time, are left alone until the next Init. While the controller is
// unreachable every sensor and relay reports unavailable.
func (c *Client) Refresh(ctx context.Context) (Inventory, error) {
	inv, err := c.Inventory(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err != nil {
		for _, s := range c.sensors {
			s.setAvailable(false)
		}
		for _, r := range c.relays {
			r.setAvailable(false)
		}
		return Inventory{}, err
	}

	values := make(map[string]SensorReading, len(inv.Sensors))
	for _, s := range inv.Sensors {
		values[s.ID.String()] = s
	}
	for _, s := range c.sensors {
		reading, ok := values[s.id]
		s.setAvailable(ok)
		if ok {
			s.setValue(reading.Value.String())
		}
	}

	states := make(map[string]RelayReading, len(inv.Relays))
	for _, r := range inv.Relays {
		states[r.Code.String()] = r
	}
	for _, r := range c.relays {
		reading, ok := states[r.code]
		r.setAvailable(ok)
		if ok {
			r.setOn(reading.IsOn)
		}
	}
	return inv, nil
}

func (c *Client) Sensors() []*TemperatureSensor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*TemperatureSensor(nil), c.sensors...)
}

func (c *Client) Relays() []*RelaySensor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*RelaySensor(nil), c.relays...)
}

func (c *Client) Circuits() []*ClimateControl {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*ClimateControl(nil), c.circuits...)
}

// Circuit finds a circuit by code.
func (c *Client) Circuit(code string) (*ClimateControl, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, circuit := range c.circuits {
		if circuit.code == code {
			return circuit, true
		}
	}
	return nil, false
}

// Inventory fetches the controller's sensor, relay and circuit listing.
func (c *Client) Inventory(ctx context.Context) (Inventory, error) {
	payload, err := c.get(ctx, "/gwd/clausius/sensors", nil)
	if err != nil {
		return Inventory{}, err
	}
	var inv Inventory
	if err := json.Unmarshal(payload, &inv); err != nil {
		return Inventory{}, fmt.Errorf("decode inventory: %w", err)
	}
	return inv, nil
}

// SetTemperature asks the controller to heat circuit code to temperature.
func (c *Client) SetTemperature(ctx context.Context, code string, temperature float64) error {
	query := url.Values{"temperature": {formatTemperature(temperature)}}
	if _, err := c.get(ctx, "/gwd/clausius/"+url.PathEscape(code)+"/temperature", query); err != nil {
		c.logger.Error("failed to set temperature",
			zap.String("circuit", code),
			zap.Float64("temperature", temperature),
			zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return payload, nil
}
