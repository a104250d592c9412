package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrDuplicateEntity = errors.New("duplicate entity unique id")
	ErrUnknownEntity   = errors.New("unknown entity")
	// ErrInvalidTemperature is wrapped by thermostats rejecting a target.
	ErrInvalidTemperature = errors.New("invalid target temperature")
)

// CheckTemperature rejects targets that are not finite numbers.
func CheckTemperature(temperature float64) error {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return fmt.Errorf("%w: %v is not a finite number", ErrInvalidTemperature, temperature)
	}
	return nil
}

type registeredEntity struct {
	owner  string
	entity Entity
	state  State
}

// EntityRegistry keeps the entities added by plugins and their last
// published state. It is in-memory only.
type EntityRegistry struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	entities  map[string]*registeredEntity
	unique    map[string]string
	listeners []func(State)
}

func NewEntityRegistry(logger *zap.Logger) *EntityRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityRegistry{
		logger:   logger.Named("entities"),
		now:      time.Now,
		entities: make(map[string]*registeredEntity),
		unique:   make(map[string]string),
	}
}

// AddFunc returns an AddEntitiesFunc that tags entities with owner and
// rejects entities of another platform.
func (r *EntityRegistry) AddFunc(owner string, platform Platform) AddEntitiesFunc {
	return func(entities ...Entity) error {
		for _, entity := range entities {
			if entity.Platform() != platform {
				return fmt.Errorf("entity %s is %s, not %s", entity.UniqueID(), entity.Platform(), platform)
			}
		}
		return r.Add(owner, entities...)
	}
}

// Add registers entities and publishes their initial state. Entity ids are
// <platform>.<slug(name)> with a numeric suffix on collision.
func (r *EntityRegistry) Add(owner string, entities ...Entity) error {
	added := make([]State, 0, len(entities))

	r.mu.Lock()
	batch := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		uid := entity.UniqueID()
		if uid == "" {
			continue
		}
		if existing, ok := r.unique[uid]; ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s (registered as %s)", ErrDuplicateEntity, uid, existing)
		}
		if _, ok := batch[uid]; ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s (twice in one batch)", ErrDuplicateEntity, uid)
		}
		batch[uid] = struct{}{}
	}
	for _, entity := range entities {
		entityID := r.allocateID(entity)
		state := r.snapshot(entityID, entity)
		r.entities[entityID] = &registeredEntity{owner: owner, entity: entity, state: state}
		if uid := entity.UniqueID(); uid != "" {
			r.unique[uid] = entityID
		}
		entityCount.WithLabelValues(string(entity.Platform())).Inc()
		added = append(added, state)
	}
	listeners := append([]func(State){}, r.listeners...)
	r.mu.Unlock()

	for _, state := range added {
		r.logger.Debug("entity added", zap.String("entity_id", state.EntityID), zap.String("owner", owner))
		notify(listeners, state)
	}
	return nil
}

func (r *EntityRegistry) allocateID(entity Entity) string {
	base := string(entity.Platform()) + "." + Slugify(entity.Name())
	id := base
	for n := 2; ; n++ {
		if _, taken := r.entities[id]; !taken {
			return id
		}
		id = base + "_" + strconv.Itoa(n)
	}
}

func (r *EntityRegistry) snapshot(entityID string, entity Entity) State {
	state := State{
		EntityID:    entityID,
		UniqueID:    entity.UniqueID(),
		Platform:    entity.Platform(),
		Name:        entity.Name(),
		LastChanged: r.now(),
	}
	if avail, ok := entity.(Availability); ok && !avail.Available() {
		state.State = StateUnavailable
		return state
	}
	snap := entity.Snapshot()
	state.State = snap.State
	if state.State == "" {
		state.State = StateUnknown
	}
	state.Attributes = snap.Attributes
	return state
}

// Get returns the last published state of an entity.
func (r *EntityRegistry) Get(entityID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.entities[entityID]
	if !ok {
		return State{}, false
	}
	return item.state, true
}

// Entity returns the entity behind an id, for service dispatch.
func (r *EntityRegistry) Entity(entityID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.entities[entityID]
	if !ok {
		return nil, false
	}
	return item.entity, true
}

// EntityIDFor resolves a unique id to its entity id.
func (r *EntityRegistry) EntityIDFor(uniqueID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.unique[uniqueID]
	return id, ok
}

// States lists published states sorted by entity id. An empty platform
// lists everything.
func (r *EntityRegistry) States(platform Platform) []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.entities))
	for _, item := range r.entities {
		if platform != "" && item.state.Platform != platform {
			continue
		}
		out = append(out, item.state)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// RemoveOwner drops every entity added under owner.
func (r *EntityRegistry) RemoveOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, item := range r.entities {
		if item.owner != owner {
			continue
		}
		delete(r.entities, id)
		if uid := item.entity.UniqueID(); uid != "" {
			delete(r.unique, uid)
		}
		entityCount.WithLabelValues(string(item.state.Platform)).Dec()
		removed++
	}
	return removed
}

// Subscribe registers a listener for state changes.
func (r *EntityRegistry) Subscribe(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Sync updates polling entities and publishes every state that changed.
func (r *EntityRegistry) Sync(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entities))
	items := make([]*registeredEntity, 0, len(r.entities))
	for id, item := range r.entities {
		ids = append(ids, id)
		items = append(items, item)
	}
	r.mu.RUnlock()

	for i, item := range items {
		if ctx.Err() != nil {
			return
		}
		if updater, ok := item.entity.(Updater); ok {
			if err := updater.Update(ctx); err != nil {
				entityUpdateErrors.WithLabelValues(string(item.entity.Platform())).Inc()
				r.logger.Warn("entity update failed", zap.String("entity_id", ids[i]), zap.Error(err))
			}
		}
		r.Refresh(ids[i])
	}
}

// Refresh recomputes one entity's state and notifies listeners if it changed.
func (r *EntityRegistry) Refresh(entityID string) {
	r.mu.Lock()
	item, ok := r.entities[entityID]
	if !ok {
		r.mu.Unlock()
		return
	}
	next := r.snapshot(entityID, item.entity)
	if next.State == item.state.State && reflect.DeepEqual(next.Attributes, item.state.Attributes) {
		r.mu.Unlock()
		return
	}
	item.state = next
	listeners := append([]func(State){}, r.listeners...)
	r.mu.Unlock()

	notify(listeners, next)
}

// SetTemperature sets a climate entity's target, pushes it when the entity
// polls, and publishes the resulting state.
func (r *EntityRegistry) SetTemperature(ctx context.Context, entityID string, temperature float64) error {
	if err := CheckTemperature(temperature); err != nil {
		return err
	}
	entity, ok := r.Entity(entityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	thermostat, ok := entity.(Thermostat)
	if !ok {
		return fmt.Errorf("entity %s does not accept a target temperature", entityID)
	}
	if err := thermostat.SetTemperature(ctx, temperature); err != nil {
		return err
	}
	if updater, ok := entity.(Updater); ok {
		if err := updater.Update(ctx); err != nil {
			entityUpdateErrors.WithLabelValues(string(entity.Platform())).Inc()
			r.Refresh(entityID)
			return fmt.Errorf("push target temperature to %s: %w", entityID, err)
		}
	}
	r.Refresh(entityID)
	return nil
}

// Run calls Sync every interval until ctx is done.
func (r *EntityRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sync(ctx)
		}
	}
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
