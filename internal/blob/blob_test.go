package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshp123/gohass/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secretFile(t *testing.T, dir, name, value string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o600))
	return path
}

func TestNewS3StoreValidation(t *testing.T) {
	_, err := NewS3Store(nil)
	require.Error(t, err)

	_, err = NewS3Store(&config.BlobConfig{Endpoint: "s3.local"})
	require.ErrorContains(t, err, "missing blob configuration")

	dir := t.TempDir()
	_, err = NewS3Store(&config.BlobConfig{
		Endpoint:      "s3.local",
		Bucket:        "keys",
		AccessKeyFile: filepath.Join(dir, "missing"),
		SecretKeyFile: filepath.Join(dir, "missing"),
	})
	require.ErrorContains(t, err, "access key")
}

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("http://minio:9000", true)
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", host)
	assert.False(t, secure)

	host, secure, err = parseEndpoint("s3.example.com", true)
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", host)
	assert.True(t, secure)

	_, secure, err = parseEndpoint("minio.lan:9000", false)
	require.NoError(t, err)
	assert.False(t, secure)

	_, _, err = parseEndpoint("https://", true)
	require.Error(t, err)
}

func TestS3StoreKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewS3Store(&config.BlobConfig{
		Endpoint:      "http://127.0.0.1:9",
		Bucket:        "keys",
		AccessKeyFile: secretFile(t, dir, "access", "AKIA"),
		SecretKeyFile: secretFile(t, dir, "secret", "s3cr3t"),
		Prefix:        "/home/webostv/",
	})
	require.NoError(t, err)
	assert.Equal(t, "home/webostv/client_keys.json", store.key("client_keys"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Load(ctx, "client_keys")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte(`{"10.0.0.2":"abc"}`)
	require.NoError(t, store.Save(ctx, "client_keys", data))
	data[0] = 'X'

	got, err := store.Load(ctx, "client_keys")
	require.NoError(t, err)
	assert.Equal(t, `{"10.0.0.2":"abc"}`, string(got))
}
