package webostv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKeyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mirror := newMemoryBlob()
	store, err := OpenKeyStore(filepath.Join(t.TempDir(), "webostv.conf"), mirror, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "10.0.0.5", "abc"))
	require.NoError(t, store.Put(ctx, "10.0.0.6", "def"))
	require.NoError(t, store.Put(ctx, "10.0.0.5", "abc2"))

	key, ok, err := store.Get(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc2", key)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10.0.0.5": "abc2", "10.0.0.6": "def"}, all)
	assert.Equal(t, []byte("abc2"), mirror.docs[mirrorName("10.0.0.5")])
}

func TestKeyStoreIgnoresPickledValues(t *testing.T) {
	ctx := context.Background()
	store, err := OpenKeyStore(filepath.Join(t.TempDir(), "webostv.conf"), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.db.ExecContext(ctx, `INSERT INTO `+keyTable+` (key, value) VALUES (?, ?)`,
		"10.0.0.7", []byte("\x80\x04\x95\x0c\x00\x00\x00\x00\x00\x00\x00\x8c\x08pickled\x94."))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "10.0.0.8", "plain"))

	_, ok, err := store.Get(ctx, "10.0.0.7")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10.0.0.8": "plain"}, all)

	require.NoError(t, store.Put(ctx, "10.0.0.7", "fresh"))
	key, ok, err := store.Get(ctx, "10.0.0.7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", key)
}

func TestKeyStoreRecoversFromMirror(t *testing.T) {
	ctx := context.Background()
	mirror := newMemoryBlob()
	mirror.docs[mirrorName("10.0.0.5")] = []byte("from-mirror")

	path := filepath.Join(t.TempDir(), "webostv.conf")
	store, err := OpenKeyStore(path, mirror, nil)
	require.NoError(t, err)
	key, ok, err := store.Get(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-mirror", key)
	require.NoError(t, store.Close())

	offline, err := OpenKeyStore(path, nil, nil)
	require.NoError(t, err)
	defer offline.Close()
	key, ok, err = offline.Get(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, ok, "mirrored key is cached locally")
	assert.Equal(t, "from-mirror", key)

	mirror.fail = errBlobDown
	down, err := OpenKeyStore(filepath.Join(t.TempDir(), "other.conf"), mirror, nil)
	require.NoError(t, err)
	defer down.Close()
	_, ok, err = down.Get(ctx, "10.0.0.5")
	require.NoError(t, err, "an unreachable mirror is not fatal")
	assert.False(t, ok)
	require.ErrorIs(t, down.Put(ctx, "10.0.0.9", "k"), errBlobDown)
}

func TestConvertClientKeys(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	migrated, err := ConvertClientKeys(ctx, filepath.Join(dir, "missing.conf"), logger)
	require.NoError(t, err)
	assert.False(t, migrated)

	path := filepath.Join(dir, "webostv.conf")
	require.NoError(t, os.WriteFile(path, []byte(`{"192.168.1.20": "key-a", "192.168.1.21": "key-b", "bad": 7}`), 0o600))
	migrated, err = ConvertClientKeys(ctx, path, logger)
	require.NoError(t, err)
	assert.True(t, migrated)

	store, err := OpenKeyStore(path, nil, logger)
	require.NoError(t, err)
	all, err := store.All(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.Equal(t, map[string]string{"192.168.1.20": "key-a", "192.168.1.21": "key-b"}, all)

	migrated, err = ConvertClientKeys(ctx, path, logger)
	require.NoError(t, err)
	assert.False(t, migrated, "an already converted file is left alone")

	for name, body := range map[string]string{
		"empty.conf":  `{}`,
		"text.conf":   "not json at all",
		"list.conf":   `["192.168.1.20"]`,
		"binary.conf": "\xff\xfe\x00",
	} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		migrated, err := ConvertClientKeys(ctx, p, logger)
		require.NoError(t, err, name)
		assert.False(t, migrated, name)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, body, string(data), name)
	}
}
