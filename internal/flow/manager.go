package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxFinished bounds how many finished results Progress and Wait can report.
const maxFinished = 128

var (
	ErrUnknownFlow    = errors.New("unknown flow")
	ErrUnknownHandler = errors.New("no flow handler for domain")
)

// Handler implements the steps of one flow instance. A new Handler is built
// for every flow, so it may keep state between steps.
type Handler interface {
	Step(ctx context.Context, fc *Context, stepID string, input map[string]any) (Result, error)
}

// Factory builds a Handler for a new flow.
type Factory func() Handler

// Context identifies a running flow to its handler.
type Context struct {
	FlowID string
	Domain string
	Source string

	manager  *Manager
	uniqueID string
}

// SetUniqueID tags the entry this flow will create. A flow whose unique id is
// already configured is aborted when it tries to create its entry.
func (c *Context) SetUniqueID(id string) {
	c.uniqueID = id
}

// Configured reports whether an entry with the current unique id exists.
func (c *Context) Configured() bool {
	return c.manager.entries.HasUniqueID(c.Domain, c.uniqueID)
}

// Continue re-enters the flow from a background task.
func (c *Context) Continue(input map[string]any) {
	go func() {
		if _, err := c.manager.Configure(context.Background(), c.FlowID, input); err != nil {
			c.manager.logger.Debug("flow continue", zap.String("flow_id", c.FlowID), zap.Error(err))
		}
	}()
}

type flowState struct {
	mu      sync.Mutex
	fc      *Context
	handler Handler
	step    string

	resultMu sync.Mutex
	last     Result
	changed  chan struct{}
}

func (f *flowState) publish(result Result) {
	f.resultMu.Lock()
	defer f.resultMu.Unlock()
	f.last = result
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *flowState) snapshot() (Result, <-chan struct{}) {
	f.resultMu.Lock()
	defer f.resultMu.Unlock()
	return f.last, f.changed
}

// Manager runs config flows and stores the entries they create.
type Manager struct {
	logger  *zap.Logger
	entries *Entries

	mu        sync.Mutex
	factories map[string]Factory
	flows     map[string]*flowState
	finished  map[string]Result
	order     []string
	onEntry   func(context.Context, Entry) error
	now       func() time.Time
}

func NewManager(entries *Entries, logger *zap.Logger) *Manager {
	if entries == nil {
		entries = NewEntries()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:    logger.Named("flow"),
		entries:   entries,
		factories: make(map[string]Factory),
		flows:     make(map[string]*flowState),
		finished:  make(map[string]Result),
		now:       time.Now,
	}
}

// Register installs the flow factory for a domain.
func (m *Manager) Register(domain string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[domain] = factory
}

// OnEntry sets the hook fired after an entry is stored. An entry whose
// hook fails is removed again and the flow aborts with "setup_failed".
func (m *Manager) OnEntry(hook func(context.Context, Entry) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEntry = hook
}

func (m *Manager) Entries() *Entries {
	return m.entries
}

// Init starts a flow for domain and runs its first step (named after source).
func (m *Manager) Init(ctx context.Context, domain, source string, input map[string]any) (Result, error) {
	m.mu.Lock()
	factory, ok := m.factories[domain]
	if !ok {
		m.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownHandler, domain)
	}
	if source == "" {
		source = SourceUser
	}
	flowID := uuid.NewString()
	state := &flowState{
		fc:      &Context{FlowID: flowID, Domain: domain, Source: source, manager: m},
		handler: factory(),
		step:    source,
		changed: make(chan struct{}),
	}
	m.flows[flowID] = state
	m.mu.Unlock()

	flowsActive.Inc()
	m.logger.Debug("flow started", zap.String("flow_id", flowID), zap.String("domain", domain), zap.String("source", source))
	return m.run(ctx, state, input)
}

// Configure feeds input to the current step of a flow.
func (m *Manager) Configure(ctx context.Context, flowID string, input map[string]any) (Result, error) {
	m.mu.Lock()
	state, ok := m.flows[flowID]
	m.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	return m.run(ctx, state, input)
}

// Progress returns the latest result of a flow, including flows that have
// already finished.
func (m *Manager) Progress(flowID string) (Result, error) {
	m.mu.Lock()
	state, ok := m.flows[flowID]
	finished, done := m.finished[flowID]
	m.mu.Unlock()
	if ok {
		result, _ := state.snapshot()
		return result, nil
	}
	if done {
		return finished, nil
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
}

// Wait blocks until the flow is no longer showing progress. A progress_done
// result is skipped; the flow advances past it on its own.
func (m *Manager) Wait(ctx context.Context, flowID string) (Result, error) {
	for {
		m.mu.Lock()
		state, ok := m.flows[flowID]
		finished, done := m.finished[flowID]
		m.mu.Unlock()
		if done {
			return finished, nil
		}
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
		}

		result, changed := state.snapshot()
		switch result.Type {
		case "", ResultProgress, ResultProgressDone:
		default:
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-changed:
		}
	}
}

func (m *Manager) run(ctx context.Context, state *flowState, input map[string]any) (Result, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	m.mu.Lock()
	_, alive := m.flows[state.fc.FlowID]
	m.mu.Unlock()
	if !alive {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, state.fc.FlowID)
	}

	step := state.step
	for {
		result, err := state.handler.Step(ctx, state.fc, step, input)
		if err != nil {
			m.finish(state, Abort("error"))
			return Result{}, fmt.Errorf("flow %s step %s: %w", state.fc.Domain, step, err)
		}
		result.FlowID = state.fc.FlowID
		result.Domain = state.fc.Domain

		switch result.Type {
		case ResultForm, ResultProgress:
			state.step = result.StepID
			state.publish(result)
			return result, nil
		case ResultProgressDone:
			state.publish(result)
			step = result.NextStepID
			input = nil
			continue
		case ResultCreateEntry:
			return m.createEntry(ctx, state, result)
		case ResultAbort:
			m.finish(state, result)
			return result, nil
		default:
			m.finish(state, Abort("error"))
			return Result{}, fmt.Errorf("flow %s step %s: unknown result type %q", state.fc.Domain, step, result.Type)
		}
	}
}

func (m *Manager) createEntry(ctx context.Context, state *flowState, result Result) (Result, error) {
	if m.entries.HasUniqueID(state.fc.Domain, state.fc.uniqueID) {
		aborted := Abort("already_configured")
		aborted.FlowID = state.fc.FlowID
		aborted.Domain = state.fc.Domain
		m.finish(state, aborted)
		return aborted, nil
	}

	entry := Entry{
		EntryID:   uuid.NewString(),
		Domain:    state.fc.Domain,
		Title:     result.Title,
		UniqueID:  state.fc.uniqueID,
		Source:    state.fc.Source,
		Data:      result.Data,
		CreatedAt: m.now(),
	}
	m.entries.Add(entry)
	entriesCreated.WithLabelValues(entry.Domain).Inc()
	result.EntryID = entry.EntryID

	m.logger.Info("config entry created",
		zap.String("domain", entry.Domain),
		zap.String("entry_id", entry.EntryID),
		zap.String("title", entry.Title))

	m.mu.Lock()
	hook := m.onEntry
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, entry); err != nil {
			m.entries.Remove(entry.EntryID)
			m.logger.Error("entry setup failed, entry removed",
				zap.String("domain", entry.Domain),
				zap.String("entry_id", entry.EntryID),
				zap.Error(err))
			aborted := Abort("setup_failed")
			aborted.FlowID = state.fc.FlowID
			aborted.Domain = state.fc.Domain
			m.finish(state, aborted)
			return aborted, nil
		}
	}

	m.finish(state, result)
	return result, nil
}

func (m *Manager) finish(state *flowState, result Result) {
	m.mu.Lock()
	if _, ok := m.flows[state.fc.FlowID]; ok {
		delete(m.flows, state.fc.FlowID)
		flowsActive.Dec()
	}
	if _, ok := m.finished[state.fc.FlowID]; !ok {
		m.order = append(m.order, state.fc.FlowID)
	}
	m.finished[state.fc.FlowID] = result
	for len(m.order) > maxFinished {
		delete(m.finished, m.order[0])
		m.order = m.order[1:]
	}
	m.mu.Unlock()
	state.publish(result)
}
