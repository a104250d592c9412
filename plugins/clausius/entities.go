package clausius

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/joshp123/gohass/internal/core"
)

const (
	HVACModeHeat = "heat"

	unitCelsius = "°C"
	minTemp     = 5
	maxTemp     = 35
	tempStep    = 1
)

// Setter pushes a circuit target to the controller.
type Setter interface {
	SetTemperature(ctx context.Context, code string, temperature float64) error
}

// ClimateControl is one heating circuit. The target is stored locally by
// SetTemperature and pushed to the controller on every Update.
type ClimateControl struct {
	code string
	api  Setter

	mu      sync.Mutex
	mode    string
	current float64
	target  float64
}

func NewClimateControl(code string, temperature float64, api Setter) *ClimateControl {
	return &ClimateControl{
		code:    code,
		api:     api,
		mode:    HVACModeHeat,
		current: temperature,
		target:  temperature,
	}
}

func (c *ClimateControl) UniqueID() string        { return "clausius_" + c.code }
func (c *ClimateControl) Name() string            { return c.code }
func (c *ClimateControl) Platform() core.Platform { return core.PlatformClimate }
func (c *ClimateControl) Code() string            { return c.code }

func (c *ClimateControl) HVACModes() []string { return []string{HVACModeHeat} }

func (c *ClimateControl) HVACMode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *ClimateControl) CurrentTemperature() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *ClimateControl) TargetTemperature() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *ClimateControl) Snapshot() core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.Snapshot{
		State: c.mode,
		Attributes: map[string]any{
			"hvac_modes":          c.HVACModes(),
			"min_temp":            float64(minTemp),
			"max_temp":            float64(maxTemp),
			"target_temp_step":    float64(tempStep),
			"temperature":         c.target,
			"current_temperature": c.current,
			"unit_of_measurement": unitCelsius,
			"supported_features":  []string{"target_temperature"},
		},
	}
}

// SetTemperature stores a new target within [5, 35] °C.
func (c *ClimateControl) SetTemperature(_ context.Context, temperature float64) error {
	if err := core.CheckTemperature(temperature); err != nil {
		return err
	}
	if temperature < minTemp || temperature > maxTemp {
		return fmt.Errorf("%w: %.1f outside %d..%d", core.ErrInvalidTemperature, temperature, minTemp, maxTemp)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = temperature
	return nil
}

func (c *ClimateControl) SetHVACMode(mode string) error {
	if !slices.Contains(c.HVACModes(), mode) {
		return fmt.Errorf("unsupported hvac mode %q", mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

// Update pushes the current target to the controller.
func (c *ClimateControl) Update(ctx context.Context) error {
	return c.api.SetTemperature(ctx, c.code, c.TargetTemperature())
}

// TemperatureSensor is a read-only temperature probe.
type TemperatureSensor struct {
	id   string
	name string

	mu          sync.Mutex
	value       string
	unavailable bool
}

func NewTemperatureSensor(id, name, value string) *TemperatureSensor {
	return &TemperatureSensor{id: id, name: name, value: value}
}

func (s *TemperatureSensor) UniqueID() string        { return "clausius_sensor_" + s.id }
func (s *TemperatureSensor) Name() string            { return s.name }
func (s *TemperatureSensor) Platform() core.Platform { return core.PlatformSensor }

func (s *TemperatureSensor) Value() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *TemperatureSensor) Snapshot() core.Snapshot {
	return core.Snapshot{
		State: s.Value(),
		Attributes: map[string]any{
			"unit_of_measurement": unitCelsius,
			"device_class":        "temperature",
		},
	}
}

func (s *TemperatureSensor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable
}

func (s *TemperatureSensor) setValue(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *TemperatureSensor) setAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = !ok
}

// RelaySensor reports whether a controller relay is energised.
type RelaySensor struct {
	code string
	name string

	mu          sync.Mutex
	on          bool
	unavailable bool
}

func NewRelaySensor(code, name string, on bool) *RelaySensor {
	return &RelaySensor{code: code, name: name, on: on}
}

func (r *RelaySensor) UniqueID() string        { return "clausius_relay_" + r.code }
func (r *RelaySensor) Name() string            { return r.name }
func (r *RelaySensor) Platform() core.Platform { return core.PlatformBinarySensor }

func (r *RelaySensor) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

func (r *RelaySensor) Snapshot() core.Snapshot {
	state := core.StateOff
	if r.IsOn() {
		state = core.StateOn
	}
	return core.Snapshot{State: state}
}

func (r *RelaySensor) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unavailable
}

func (r *RelaySensor) setOn(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.on = on
}

func (r *RelaySensor) setAvailable(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = !ok
}
