package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshp123/gohass/internal/flow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Hub ties plugins to the entity registry and the config-flow manager.
type Hub struct {
	logger   *zap.Logger
	entities *EntityRegistry
	flows    *flow.Manager
	plugins  []Plugin
	handlers map[string]EntryHandler
}

func NewHub(plugins []Plugin, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger:   logger.Named("hub"),
		entities: NewEntityRegistry(logger),
		flows:    flow.NewManager(flow.NewEntries(), logger),
		plugins:  plugins,
		handlers: make(map[string]EntryHandler),
	}
	for _, p := range plugins {
		if fp, ok := p.(FlowProvider); ok {
			h.flows.Register(p.ID(), fp.NewFlow)
		}
		if eh, ok := p.(EntryHandler); ok {
			h.handlers[p.ID()] = eh
		}
		if b, ok := p.(EntityBinder); ok {
			b.BindEntities(h.entities)
		}
	}
	h.flows.OnEntry(h.SetupEntry)
	return h
}

func (h *Hub) Entities() *EntityRegistry { return h.entities }

func (h *Hub) Flows() *flow.Manager { return h.flows }

func (h *Hub) Plugins() []Plugin { return h.plugins }

// LoadPlatforms runs platform setup for statically configured plugins.
func (h *Hub) LoadPlatforms(ctx context.Context) {
	LoadPlatforms(ctx, h.plugins, h.entities, h.logger)
}

// SetupEntry hands a config entry to the plugin owning its domain.
func (h *Hub) SetupEntry(ctx context.Context, entry flow.Entry) error {
	handler, ok := h.handlers[entry.Domain]
	if !ok {
		return fmt.Errorf("no entry handler for %s", entry.Domain)
	}
	add := func(platform Platform) AddEntitiesFunc {
		return h.entities.AddFunc(entry.EntryID, platform)
	}
	if err := handler.SetupEntry(ctx, entry, add); err != nil {
		h.entities.RemoveOwner(entry.EntryID)
		return fmt.Errorf("setup %s entry %s: %w", entry.Domain, entry.EntryID, err)
	}
	h.logger.Info("entry loaded", zap.String("domain", entry.Domain), zap.String("entry_id", entry.EntryID))
	return nil
}

// UnloadEntry removes an entry, unloads it from its plugin and drops its
// entities.
func (h *Hub) UnloadEntry(ctx context.Context, entryID string) error {
	entry, ok := h.flows.Entries().Remove(entryID)
	if !ok {
		return fmt.Errorf("unknown entry %s", entryID)
	}
	removed := h.entities.RemoveOwner(entry.EntryID)
	h.logger.Info("entry unloaded",
		zap.String("domain", entry.Domain),
		zap.String("entry_id", entry.EntryID),
		zap.Int("entities", removed))

	handler, ok := h.handlers[entry.Domain]
	if !ok {
		return nil
	}
	if err := handler.UnloadEntry(ctx, entry); err != nil {
		return fmt.Errorf("unload %s entry %s: %w", entry.Domain, entry.EntryID, err)
	}
	return nil
}

// RunImports starts an import flow for every legacy definition a plugin
// carries in static config. Failed imports are logged.
func (h *Hub) RunImports(ctx context.Context) {
	for _, p := range h.plugins {
		importer, ok := p.(Importer)
		if !ok || p.Health() == HealthError {
			continue
		}
		for _, input := range importer.Imports() {
			result, err := h.flows.Init(ctx, p.ID(), flow.SourceImport, input)
			if err != nil {
				h.logger.Error("import flow failed", zap.String("plugin", p.ID()), zap.Error(err))
				continue
			}
			h.logger.Info("import flow started",
				zap.String("plugin", p.ID()),
				zap.String("flow_id", result.FlowID),
				zap.String("result", string(result.Type)))
		}
	}
}

// Start launches background work for plugins that have any.
func (h *Hub) Start(ctx context.Context) {
	for _, p := range h.plugins {
		if p.Health() == HealthError {
			continue
		}
		if s, ok := p.(Starter); ok {
			s.Start(ctx)
		}
	}
}

// Close unloads every entry and closes plugin connections.
func (h *Hub) Close(ctx context.Context) error {
	var g errgroup.Group
	for _, entry := range h.flows.Entries().List("") {
		entryID := entry.EntryID
		g.Go(func() error { return h.UnloadEntry(ctx, entryID) })
	}
	errs := []error{g.Wait()}

	for _, p := range h.plugins {
		if c, ok := p.(Closer); ok {
			errs = append(errs, c.Close(ctx))
		}
	}
	return errors.Join(errs...)
}
