package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// pairingHandler shows progress, finishes a background task and then creates
// an entry, mirroring the shape of a device pairing wizard.
type pairingHandler struct {
	done    chan error
	release chan struct{}
	data    map[string]any
}

func (h *pairingHandler) Step(_ context.Context, fc *Context, stepID string, input map[string]any) (Result, error) {
	switch stepID {
	case "user":
		if input == nil {
			return ShowForm("user", []Field{{Name: "host", Type: "string", Required: true}}, nil), nil
		}
		if h.done == nil {
			h.done = make(chan error, 1)
			h.data = input
			go func() {
				<-h.release
				h.done <- nil
				fc.Continue(map[string]any{})
			}()
			return ShowProgress("user", "pair"), nil
		}
		if err := <-h.done; err != nil {
			return ShowProgressDone("user"), nil
		}
		return ShowProgressDone("finish"), nil
	case "finish":
		fc.SetUniqueID(h.data["host"].(string))
		return CreateEntry("TV", h.data), nil
	}
	return Result{}, errors.New("unexpected step " + stepID)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewEntries(), zaptest.NewLogger(t))
}

func TestManagerProgressFlowCreatesEntry(t *testing.T) {
	m := newTestManager(t)
	handler := &pairingHandler{release: make(chan struct{})}
	m.Register("demo", func() Handler { return handler })

	var created []Entry
	m.OnEntry(func(_ context.Context, entry Entry) error {
		created = append(created, entry)
		return nil
	})

	ctx := context.Background()
	result, err := m.Init(ctx, "demo", SourceUser, nil)
	require.NoError(t, err)
	require.Equal(t, ResultForm, result.Type)
	require.Equal(t, "user", result.StepID)
	require.NotEmpty(t, result.FlowID)

	result, err = m.Configure(ctx, result.FlowID, map[string]any{"host": "10.0.0.2"})
	require.NoError(t, err)
	require.Equal(t, ResultProgress, result.Type)
	require.Equal(t, "pair", result.ProgressAction)

	close(handler.release)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := m.Wait(waitCtx, result.FlowID)
	require.NoError(t, err)
	require.Equal(t, ResultCreateEntry, final.Type)
	assert.Equal(t, "TV", final.Title)
	assert.NotEmpty(t, final.EntryID)

	entries := m.Entries().List("demo")
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.2", entries[0].UniqueID)
	assert.Equal(t, "10.0.0.2", entries[0].String("host"))
	require.Len(t, created, 1)

	_, err = m.Configure(ctx, result.FlowID, nil)
	require.ErrorIs(t, err, ErrUnknownFlow)
}

func TestManagerAbortsDuplicateUniqueID(t *testing.T) {
	m := newTestManager(t)
	m.Entries().Add(Entry{EntryID: "existing", Domain: "demo", UniqueID: "10.0.0.2"})

	handler := &pairingHandler{release: make(chan struct{})}
	close(handler.release)
	m.Register("demo", func() Handler { return handler })

	ctx := context.Background()
	result, err := m.Init(ctx, "demo", SourceUser, map[string]any{"host": "10.0.0.2"})
	require.NoError(t, err)

	final, err := m.Wait(ctx, result.FlowID)
	require.NoError(t, err)
	require.Equal(t, ResultAbort, final.Type)
	require.Equal(t, "already_configured", final.Reason)
	require.Len(t, m.Entries().List("demo"), 1)
}

func TestManagerRemovesEntryWhenSetupFails(t *testing.T) {
	m := newTestManager(t)
	handler := &pairingHandler{release: make(chan struct{})}
	close(handler.release)
	m.Register("demo", func() Handler { return handler })

	setupErr := errors.New("device not ready")
	m.OnEntry(func(context.Context, Entry) error { return setupErr })

	ctx := context.Background()
	result, err := m.Init(ctx, "demo", SourceUser, map[string]any{"host": "10.0.0.2"})
	require.NoError(t, err)
	final, err := m.Wait(ctx, result.FlowID)
	require.NoError(t, err)
	require.Equal(t, ResultAbort, final.Type)
	assert.Equal(t, "setup_failed", final.Reason)
	assert.Empty(t, final.EntryID)
	assert.Empty(t, m.Entries().List("demo"))

	setupErr = nil
	retry := &pairingHandler{release: make(chan struct{})}
	close(retry.release)
	m.Register("demo", func() Handler { return retry })
	result, err = m.Init(ctx, "demo", SourceUser, map[string]any{"host": "10.0.0.2"})
	require.NoError(t, err)
	final, err = m.Wait(ctx, result.FlowID)
	require.NoError(t, err)
	require.Equal(t, ResultCreateEntry, final.Type)
	require.Len(t, m.Entries().List("demo"), 1)
}

func TestManagerUnknownDomain(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Init(context.Background(), "missing", SourceUser, nil)
	require.ErrorIs(t, err, ErrUnknownHandler)
}

type failingHandler struct{}

func (failingHandler) Step(context.Context, *Context, string, map[string]any) (Result, error) {
	return Result{}, errors.New("boom")
}

func TestManagerStepErrorEndsFlow(t *testing.T) {
	m := newTestManager(t)
	m.Register("demo", func() Handler { return failingHandler{} })

	_, err := m.Init(context.Background(), "demo", SourceUser, nil)
	require.Error(t, err)

	require.Empty(t, m.Entries().List(""))
}
