package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	loader := NewLoader("", path)

	changes := make(chan *Config, 4)
	errs := make(chan error, 4)
	w, err := loader.Watch(context.Background(), func(cfg *Config) { changes <- cfg }, func(err error) { errs <- err })
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: not-a-level\n"), 0o600))
	select {
	case err := <-errs:
		require.ErrorContains(t, err, "logging.level")
	case <-time.After(5 * time.Second):
		t.Fatal("invalid config was not reported")
	}

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Logging.Level == "debug" {
				return
			}
		case <-errs:
		case <-deadline:
			t.Fatal("config change was not delivered")
		}
	}
}

func TestWatchRequiresFile(t *testing.T) {
	_, err := NewLoader("").Watch(context.Background(), func(*Config) {}, nil)
	require.Error(t, err)

	_, err = NewLoader("", writeConfig(t, "")).Watch(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewLoader("", writeConfig(t, "")).Watch(context.Background(), func(*Config) {}, nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()

	var nilWatcher *Watcher
	nilWatcher.Stop()
}
