package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		assert  func(t *testing.T, cfg *Config)
	}{
		{
			name: "applies defaults",
			yaml: "clausius:\n  scan_interval_seconds: 15\n",
			assert: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultGRPCAddr, cfg.Core.GRPCAddr)
				assert.Equal(t, DefaultSyncInterval, cfg.Core.SyncInterval())
				assert.Equal(t, "info", cfg.Logging.Level)
				require.NotNil(t, cfg.Clausius)
				assert.Equal(t, DefaultClausiusBaseURL, cfg.Clausius.BaseURL)
				assert.Equal(t, 15*time.Second, cfg.Clausius.ScanInterval())
				assert.Nil(t, cfg.UptimeRobot)
				assert.Equal(t, map[string]bool{"clausius": true}, EnabledPlugins(cfg))
			},
		},
		{
			name: "prefers env overrides",
			yaml: "core:\n  http_addr: 127.0.0.1:8081\nclausius:\n  base_url: http://10.0.0.5\n",
			env: map[string]string{
				"GOHASS_CORE__HTTP_ADDR":       "127.0.0.1:9999",
				"GOHASS_CLAUSIUS__BASE_URL":    "http://10.0.0.6",
				"GOHASS_LOGGING__FORMAT":       "console",
				"GOHASS_UPTIMEROBOT__BASE_URL": "http://127.0.0.1:1",
			},
			assert: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1:9999", cfg.Core.HTTPAddr)
				assert.Equal(t, "http://10.0.0.6", cfg.Clausius.BaseURL)
				assert.Equal(t, "console", cfg.Logging.Format)
				require.NotNil(t, cfg.UptimeRobot)
				assert.Equal(t, DefaultUptimeRobotRPM, cfg.UptimeRobot.RequestsPerMinute)
				assert.Equal(t, DefaultUptimeRobotScanInterval, cfg.UptimeRobot.ScanInterval())
			},
		},
		{
			name: "legacy webostv devices get a default name",
			yaml: "webostv:\n  devices:\n    - host: 10.0.0.20\n    - host: 10.0.0.21\n      name: Bedroom\n      customize:\n        sources: [HDMI1, Netflix]\n",
			assert: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.WebOSTV)
				require.Len(t, cfg.WebOSTV.Devices, 2)
				assert.Equal(t, DefaultWebOSName, cfg.WebOSTV.Devices[0].Name)
				assert.Equal(t, "Bedroom", cfg.WebOSTV.Devices[1].Name)
				assert.Equal(t, []string{"HDMI1", "Netflix"}, cfg.WebOSTV.Devices[1].Customize.Sources)
				assert.Equal(t, DefaultWebOSKeyFile, cfg.WebOSTV.KeyFile)
			},
		},
		{
			name:    "rejects relative clausius url",
			yaml:    "clausius:\n  base_url: 192.168.10.2\n",
			wantErr: "clausius.base_url",
		},
		{
			name:    "rejects webostv device without host",
			yaml:    "webostv:\n  devices:\n    - name: Lounge\n",
			wantErr: "webostv.devices[0].host",
		},
		{
			name:    "rejects incomplete blob config",
			yaml:    "blob:\n  endpoint: s3.local:9000\n",
			wantErr: "blob.bucket",
		},
		{
			name:    "rejects unknown log level",
			yaml:    "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			cfg, err := NewLoader(EnvPrefix, writeConfig(t, tc.yaml)).Load(context.Background())
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.assert(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "not found")
}

func TestReadSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  hunter2\n"), 0o600))
	secret, err := ReadSecret(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}
