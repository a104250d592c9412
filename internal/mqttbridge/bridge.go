// Package mqttbridge mirrors entity states to MQTT and accepts climate
// commands from it.
//
// Topics, under a configurable prefix:
//
//	<prefix>/status                               online / offline (retained)
//	<prefix>/<platform>/<object_id>/state         state JSON (retained)
//	<prefix>/climate/<object_id>/set_temperature  command, number payload
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshp123/gohass/internal/core"
	"go.uber.org/zap"
)

// Registry is the subset of the entity registry the bridge needs.
type Registry interface {
	States(platform core.Platform) []core.State
	Subscribe(fn func(core.State))
	SetTemperature(ctx context.Context, entityID string, temperature float64) error
}

type Bridge struct {
	transport Transport
	registry  Registry
	prefix    string
	interval  time.Duration
	logger    *zap.Logger

	pending   chan core.State
	running   atomic.Bool
	subscribe sync.Once
}

func New(transport Transport, registry Registry, prefix string, interval time.Duration, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Bridge{
		transport: transport,
		registry:  registry,
		prefix:    strings.TrimSuffix(prefix, "/"),
		interval:  interval,
		logger:    logger.Named("mqtt"),
		pending:   make(chan core.State, 256),
	}
}

// StatusTopic is where availability of the daemon is announced.
func StatusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

// StateTopic maps an entity id like climate.floor to its state topic.
func (b *Bridge) StateTopic(entityID string) string {
	platform, object, ok := strings.Cut(entityID, ".")
	if !ok {
		return b.prefix + "/" + entityID + "/state"
	}
	return b.prefix + "/" + platform + "/" + object + "/state"
}

// Run publishes every state on start and on each interval, and every change
// as it happens, until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	unsubscribe, err := b.transport.Subscribe(b.prefix+"/climate/+/set_temperature", func(topic string, payload []byte) {
		b.handleSetTemperature(ctx, topic, payload)
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	b.subscribe.Do(func() { b.registry.Subscribe(b.enqueue) })
	b.running.Store(true)
	defer b.running.Store(false)

	b.publishAll()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.publishAll()
		case state := <-b.pending:
			b.publish(state)
		}
	}
}

func (b *Bridge) enqueue(state core.State) {
	if !b.running.Load() {
		return
	}
	select {
	case b.pending <- state:
	default:
		droppedTotal.Inc()
	}
}

func (b *Bridge) publishAll() {
	for _, state := range b.registry.States("") {
		b.publish(state)
	}
}

type statePayload struct {
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

func (b *Bridge) publish(state core.State) {
	payload, err := json.Marshal(statePayload{State: state.State, Attributes: state.Attributes, LastChanged: state.LastChanged})
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		b.logger.Warn("encode state", zap.String("entity_id", state.EntityID), zap.Error(err))
		return
	}
	if err := b.transport.Publish(b.StateTopic(state.EntityID), true, payload); err != nil {
		publishTotal.WithLabelValues("error").Inc()
		b.logger.Warn("publish state", zap.String("entity_id", state.EntityID), zap.Error(err))
		return
	}
	publishTotal.WithLabelValues("ok").Inc()
}

func (b *Bridge) handleSetTemperature(ctx context.Context, topic string, payload []byte) {
	entityID, temperature, err := b.parseSetTemperature(topic, payload)
	if err == nil {
		err = b.registry.SetTemperature(ctx, entityID, temperature)
	}
	if err != nil {
		commandTotal.WithLabelValues("set_temperature", "error").Inc()
		b.logger.Warn("set_temperature command failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	commandTotal.WithLabelValues("set_temperature", "ok").Inc()
	b.logger.Info("set_temperature", zap.String("entity_id", entityID), zap.Float64("temperature", temperature))
}

// parseSetTemperature accepts a bare number or {"temperature": n}.
func (b *Bridge) parseSetTemperature(topic string, payload []byte) (string, float64, error) {
	rest := strings.TrimPrefix(topic, b.prefix+"/climate/")
	object, ok := strings.CutSuffix(rest, "/set_temperature")
	if !ok || object == "" || strings.Contains(object, "/") {
		return "", 0, fmt.Errorf("unexpected topic %s", topic)
	}
	entityID := string(core.PlatformClimate) + "." + object

	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			Temperature *float64 `json:"temperature"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", 0, fmt.Errorf("decode payload: %w", err)
		}
		if body.Temperature == nil {
			return "", 0, fmt.Errorf("payload has no temperature")
		}
		if err := core.CheckTemperature(*body.Temperature); err != nil {
			return "", 0, err
		}
		return entityID, *body.Temperature, nil
	}
	temperature, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse temperature %q: %w", raw, err)
	}
	if err := core.CheckTemperature(temperature); err != nil {
		return "", 0, err
	}
	return entityID, temperature, nil
}
