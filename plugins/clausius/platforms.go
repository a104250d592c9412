package clausius

import (
	"context"

	"github.com/joshp123/gohass/internal/core"
)

// SetupClimate adds one climate entity per heating circuit.
func SetupClimate(_ context.Context, client *Client, add core.AddEntitiesFunc) error {
	circuits := client.Circuits()
	entities := make([]core.Entity, 0, len(circuits))
	for _, c := range circuits {
		entities = append(entities, c)
	}
	return add(entities...)
}

// SetupSensor adds the temperature probes.
func SetupSensor(_ context.Context, client *Client, add core.AddEntitiesFunc) error {
	sensors := client.Sensors()
	entities := make([]core.Entity, 0, len(sensors))
	for _, s := range sensors {
		entities = append(entities, s)
	}
	return add(entities...)
}

// SetupBinarySensor adds the relays.
func SetupBinarySensor(_ context.Context, client *Client, add core.AddEntitiesFunc) error {
	relays := client.Relays()
	entities := make([]core.Entity, 0, len(relays))
	for _, r := range relays {
		entities = append(entities, r)
	}
	return add(entities...)
}
