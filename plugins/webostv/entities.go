package webostv

import (
	"context"
	"fmt"

	"github.com/joshp123/gohass/internal/core"
	"go.uber.org/zap"
)

// MediaPlayer represents the TV. It is on while the SSAP socket is open.
type MediaPlayer struct {
	client  *Client
	name    string
	sources []string
	logger  *zap.Logger
}

func NewMediaPlayer(client *Client, name string, sources []string, logger *zap.Logger) *MediaPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaPlayer{client: client, name: name, sources: sources, logger: logger}
}

func (m *MediaPlayer) UniqueID() string        { return m.client.Host() }
func (m *MediaPlayer) Name() string            { return m.name }
func (m *MediaPlayer) Platform() core.Platform { return core.PlatformMediaPlayer }
func (m *MediaPlayer) Client() *Client         { return m.client }

func (m *MediaPlayer) Snapshot() core.Snapshot {
	attrs := map[string]any{}
	if len(m.sources) > 0 {
		attrs["source_list"] = append([]string(nil), m.sources...)
	}
	if !m.client.IsConnected() {
		return core.Snapshot{State: core.StateOff, Attributes: attrs}
	}
	state := m.client.State()
	attrs["volume_level"] = float64(state.Volume) / 100
	attrs["is_volume_muted"] = state.Muted
	if state.App != "" {
		attrs["source"] = state.App
	}
	if state.SoundOutput != "" {
		attrs["sound_output"] = state.SoundOutput
	}
	return core.Snapshot{State: core.StateOn, Attributes: attrs}
}

// Update reconnects a TV that has come back on.
func (m *MediaPlayer) Update(ctx context.Context) error {
	if m.client.IsConnected() {
		return nil
	}
	return ConnectQuietly(ctx, m.client, m.logger)
}

func (m *MediaPlayer) Button(ctx context.Context, button string) error {
	return m.client.Button(ctx, button)
}

func (m *MediaPlayer) Command(ctx context.Context, uri string, payload map[string]any) error {
	_, err := m.client.Command(ctx, uri, payload)
	return err
}

func (m *MediaPlayer) SelectSoundOutput(ctx context.Context, output string) error {
	return m.client.SelectSoundOutput(ctx, output)
}

// Notifier sends toasts to the TV.
type Notifier struct {
	client *Client
	name   string
	icon   string
}

func NewNotifier(client *Client, name, icon string) *Notifier {
	return &Notifier{client: client, name: name, icon: icon}
}

func (n *Notifier) UniqueID() string        { return n.client.Host() + "_notify" }
func (n *Notifier) Name() string            { return n.name }
func (n *Notifier) Platform() core.Platform { return core.PlatformNotify }

func (n *Notifier) Snapshot() core.Snapshot {
	state := core.StateOff
	if n.client.IsConnected() {
		state = core.StateOn
	}
	return core.Snapshot{State: state}
}

// SendMessage connects first when the TV is not connected yet.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if !n.client.IsConnected() {
		if err := n.client.Connect(ctx); err != nil {
			return fmt.Errorf("tv unreachable: %w", err)
		}
	}
	return n.client.CreateToast(ctx, text, n.icon)
}
