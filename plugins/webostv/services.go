package webostv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/joshp123/gohass/internal/core"
)

const (
	ServiceButton            = "button"
	ServiceCommand           = "command"
	ServiceSelectSoundOutput = "select_sound_output"

	// EntityAll targets every loaded TV.
	EntityAll = "all"
)

var (
	ErrServiceNotRegistered = errors.New("service not registered")
	ErrInvalidServiceCall   = errors.New("invalid service call")
)

// ServiceCall is the data of a button, command or select_sound_output call.
type ServiceCall struct {
	EntityIDs   []string
	Button      string
	Command     string
	Payload     map[string]any
	SoundOutput string
}

type serviceHandler struct {
	validate func(ServiceCall) error
	run      func(context.Context, *MediaPlayer, ServiceCall) error
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidServiceCall, field)
	}
	return nil
}

func serviceTable() map[string]serviceHandler {
	return map[string]serviceHandler{
		ServiceButton: {
			validate: func(c ServiceCall) error { return required("button", c.Button) },
			run: func(ctx context.Context, m *MediaPlayer, c ServiceCall) error {
				return m.Button(ctx, c.Button)
			},
		},
		ServiceCommand: {
			validate: func(c ServiceCall) error { return required("command", c.Command) },
			run: func(ctx context.Context, m *MediaPlayer, c ServiceCall) error {
				return m.Command(ctx, c.Command, c.Payload)
			},
		},
		ServiceSelectSoundOutput: {
			validate: func(c ServiceCall) error { return required("sound_output", c.SoundOutput) },
			run: func(ctx context.Context, m *MediaPlayer, c ServiceCall) error {
				return m.SelectSoundOutput(ctx, c.SoundOutput)
			},
		},
	}
}

// CallService runs a service against every targeted TV and returns how many
// were targeted. Entity ids that are not webOS media players are ignored.
func (p *Plugin) CallService(ctx context.Context, service string, call ServiceCall) (int, error) {
	p.mu.Lock()
	handler, ok := p.services[service]
	registry := p.entities
	p.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrServiceNotRegistered, PluginID, service)
	}
	if len(call.EntityIDs) == 0 {
		return 0, fmt.Errorf("%w: entity_id is required", ErrInvalidServiceCall)
	}
	if err := handler.validate(call); err != nil {
		return 0, err
	}

	targets := p.targets(registry, call.EntityIDs)
	var errs []error
	for _, player := range targets {
		err := handler.run(ctx, player, call)
		p.metrics.observeCommand(service, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", service, player.UniqueID(), err))
		}
	}
	return len(targets), errors.Join(errs...)
}

func (p *Plugin) targets(registry *core.EntityRegistry, entityIDs []string) []*MediaPlayer {
	loaded := p.runtimes()
	var out []*MediaPlayer
	if slices.Contains(entityIDs, EntityAll) {
		for _, rt := range loaded {
			out = append(out, rt.player)
		}
		slices.SortFunc(out, func(a, b *MediaPlayer) int {
			return strings.Compare(a.UniqueID(), b.UniqueID())
		})
		return out
	}
	if registry == nil {
		return nil
	}
	for _, id := range entityIDs {
		entity, ok := registry.Entity(id)
		if !ok {
			continue
		}
		player, ok := entity.(*MediaPlayer)
		if !ok || slices.Contains(out, player) {
			continue
		}
		for _, rt := range loaded {
			if rt.player == player {
				out = append(out, player)
				break
			}
		}
	}
	return out
}

// Notify shows a toast through a notify entity.
func (p *Plugin) Notify(ctx context.Context, entityID, text string) error {
	if text == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidServiceCall)
	}
	p.mu.Lock()
	registry := p.entities
	p.mu.Unlock()
	if registry == nil {
		return fmt.Errorf("%w: %s", core.ErrUnknownEntity, entityID)
	}
	entity, ok := registry.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownEntity, entityID)
	}
	notifier, ok := entity.(*Notifier)
	if !ok {
		return fmt.Errorf("%w: %s is not a webOS notify entity", ErrInvalidServiceCall, entityID)
	}
	err := notifier.SendMessage(ctx, text)
	p.metrics.observeCommand("notify", err)
	return err
}
