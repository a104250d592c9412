package webostv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSocketURL(t *testing.T) {
	assert.Equal(t, "ws://192.168.1.20:3000/", socketURL("192.168.1.20"))
	assert.Equal(t, "ws://tv.local:3000/", socketURL("tv.local"))
	assert.Equal(t, "ws://127.0.0.1:8080/", socketURL("127.0.0.1:8080"))
	assert.Equal(t, "ws://[fe80::1]:3000/", socketURL("fe80::1"))
}

func TestConnectPairsAndStoresKey(t *testing.T) {
	tv := newFakeTV(t)
	store := newMemoryKeys()
	client := NewClient(tv.host(), WithKeyStore(store), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, client.Init(ctx))
	assert.Empty(t, client.ClientKey())

	var updates atomic.Int32
	client.AddStateUpdateCallback(func() { updates.Add(1) })

	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())
	assert.Equal(t, "key-1", client.ClientKey())
	assert.Equal(t, []string{""}, tv.seenRegisterKeys(), "first registration prompts without a key")

	key, ok, err := store.Get(ctx, tv.host())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-1", key)

	assert.Eventually(t, func() bool {
		s := client.State()
		return s.Volume == 12 && s.App == "netflix" && s.SoundOutput == "tv_speaker"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.Connect(ctx), "connect on an open client is a no-op")
	require.NoError(t, client.Disconnect())
	assert.False(t, client.IsConnected())
	require.NoError(t, client.Disconnect())
	assert.Positive(t, updates.Load())

	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, []string{"", "key-1"}, tv.seenRegisterKeys(), "reconnect reuses the key")
	require.NoError(t, client.Disconnect())
}

func TestNoStoreClientNeverWritesKey(t *testing.T) {
	tv := newFakeTV(t)
	store := newMemoryKeys()
	store.keys[tv.host()] = "stored"
	tv.set(func(tv *fakeTV) { tv.key = "rotated" })

	client := NewNoStoreClient(tv.host(), WithKeyStore(store))
	require.NoError(t, client.Init(context.Background()))
	assert.Equal(t, "stored", client.ClientKey())

	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	assert.Equal(t, []string{"stored"}, tv.seenRegisterKeys())
	assert.Equal(t, "rotated", client.ClientKey())
	assert.Zero(t, store.puts)
	assert.Equal(t, "stored", store.keys[tv.host()])
}

func TestConnectPairError(t *testing.T) {
	tv := newFakeTV(t)
	tv.set(func(tv *fakeTV) { tv.reject = true })
	client := NewClient(tv.host())

	err := client.Connect(context.Background())
	var pairErr *PairError
	require.ErrorAs(t, err, &pairErr)
	assert.Contains(t, pairErr.Message, "rejected")
	assert.False(t, client.IsConnected())

	assert.NoError(t, ConnectQuietly(context.Background(), client, zaptest.NewLogger(t)))
}

func TestConnectTimesOutWaitingForPrompt(t *testing.T) {
	tv := newFakeTV(t)
	tv.set(func(tv *fakeTV) { tv.silent = true })
	client := NewClient(tv.host())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := client.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, isTransportError(err))
}

type failingConnector struct{ err error }

func (f failingConnector) Connect(context.Context) error { return f.err }

func TestConnectQuietly(t *testing.T) {
	ctx := context.Background()
	unreachable := NewClient("127.0.0.1:1")
	err := unreachable.Connect(ctx)
	require.Error(t, err)
	assert.True(t, isTransportError(err))
	assert.NoError(t, ConnectQuietly(ctx, unreachable, nil))

	for _, swallowed := range []error{
		&PairError{Message: "denied"},
		&CommandError{Message: "not connected"},
		context.Canceled,
		context.DeadlineExceeded,
		ErrConnectionClosed,
	} {
		assert.NoError(t, ConnectQuietly(ctx, failingConnector{err: swallowed}, nil), swallowed.Error())
	}

	boom := errors.New("boom")
	assert.ErrorIs(t, ConnectQuietly(ctx, failingConnector{err: boom}, nil), boom)
}

func TestClientRequests(t *testing.T) {
	tv := newFakeTV(t)
	client := NewClient(tv.host(), WithClientKey("key-1"))
	ctx := context.Background()

	_, err := client.Request(ctx, uriGetVolume, nil)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr, "requests need a connection")
	assert.Equal(t, "not connected", cmdErr.Message)

	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	require.NoError(t, client.Button(ctx, "ENTER"))
	assert.Eventually(t, func() bool {
		return len(tv.seenButtons()) == 1 && tv.seenButtons()[0] == "ENTER"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.SelectSoundOutput(ctx, "external_arc"))
	sent, ok := tv.request(uriSoundOutput)
	require.True(t, ok)
	assert.JSONEq(t, `{"output":"external_arc"}`, string(sent.Payload))

	reply, err := client.Command(ctx, "ssap://system.launcher/launch", map[string]any{"id": "youtube.leanback.v4"})
	require.NoError(t, err)
	assert.Equal(t, true, reply["returnValue"])

	_, err = client.Command(ctx, "ssap://fail", nil)
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "no such service", cmdErr.Message)

	_, err = client.Command(ctx, "ssap://error", nil)
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, cmdErr.Message, "401")
}

func TestCreateToast(t *testing.T) {
	tv := newFakeTV(t)
	client := NewClient(tv.host(), WithClientKey("key-1"))
	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	require.NoError(t, client.CreateToast(ctx, "Dinner is ready", ""))
	sent, ok := tv.request(uriCreateToast)
	require.True(t, ok)
	assert.JSONEq(t, `{"message":"Dinner is ready"}`, string(sent.Payload))

	icon := filepath.Join(t.TempDir(), "bell.png")
	require.NoError(t, os.WriteFile(icon, []byte("png-bytes"), 0o600))
	require.NoError(t, client.CreateToast(ctx, "Doorbell", icon))
	sent, _ = tv.request(uriCreateToast)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(sent.Payload, &payload))
	assert.Equal(t, "png", payload["iconExtension"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), payload["iconData"])

	require.Error(t, client.CreateToast(ctx, "x", filepath.Join(t.TempDir(), "missing.png")))
}

func TestStateUpdatesAndConnectionLoss(t *testing.T) {
	tv := newFakeTV(t)
	client := NewClient(tv.host(), WithClientKey("key-1"), WithLogger(zaptest.NewLogger(t)))
	var updates atomic.Int32
	client.AddStateUpdateCallback(func() { updates.Add(1) })

	require.NoError(t, client.Connect(context.Background()))
	assert.Eventually(t, func() bool { return client.State().Volume == 12 }, time.Second, 10*time.Millisecond)

	tv.push(uriGetVolume, map[string]any{"volume": 30, "muted": true})
	assert.Eventually(t, func() bool {
		s := client.State()
		return s.Volume == 30 && s.Muted
	}, time.Second, 10*time.Millisecond)

	before := updates.Load()
	tv.dropAll()
	assert.Eventually(t, func() bool { return !client.IsConnected() }, time.Second, 10*time.Millisecond)
	assert.Greater(t, updates.Load(), before)

	_, err := client.Request(context.Background(), uriGetVolume, nil)
	require.Error(t, err)
	require.NoError(t, client.Disconnect())

	client.ClearStateUpdateCallbacks()
	require.NoError(t, client.Connect(context.Background()))
	count := updates.Load()
	require.NoError(t, client.Disconnect())
	assert.Equal(t, count, updates.Load())
}
