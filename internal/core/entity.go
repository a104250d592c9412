package core

import (
	"context"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Platform is a category of entity.
type Platform string

const (
	PlatformClimate      Platform = "climate"
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformMediaPlayer  Platform = "media_player"
	PlatformNotify       Platform = "notify"
)

const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// Snapshot is the entity-reported part of a state.
type Snapshot struct {
	State      string
	Attributes map[string]any
}

// State is what the hub publishes for one entity.
type State struct {
	EntityID    string         `json:"entity_id"`
	UniqueID    string         `json:"unique_id"`
	Platform    Platform       `json:"platform"`
	Name        string         `json:"name"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

// Entity is one observable or controllable device attribute.
type Entity interface {
	UniqueID() string
	Name() string
	Platform() Platform
	Snapshot() Snapshot
}

// Updater is implemented by entities that poll their device.
type Updater interface {
	Update(ctx context.Context) error
}

// Thermostat is implemented by climate entities with a settable target.
type Thermostat interface {
	SetTemperature(ctx context.Context, temperature float64) error
}

// Availability is implemented by entities that can become unreachable.
type Availability interface {
	Available() bool
}

// AddEntitiesFunc registers entities with the hub.
type AddEntitiesFunc func(entities ...Entity) error

// Slugify transliterates name to ASCII, lowercases it and joins the
// remaining words with underscores.
func Slugify(name string) string {
	words := strings.FieldsFunc(slug.Make(name), func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(words) == 0 {
		return "unnamed"
	}
	return strings.Join(words, "_")
}
