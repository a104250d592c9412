package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix                      = "GOHASS"
	DefaultPath                    = "/etc/gohass/config.yaml"
	DefaultGRPCAddr                = "0.0.0.0:9000"
	DefaultHTTPAddr                = "0.0.0.0:8080"
	DefaultDashboardDir            = "/var/lib/gohass/dashboards"
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "json"
	DefaultSyncInterval            = 30 * time.Second
	DefaultBlobPrefix              = "gohass"
	DefaultMQTTClientID            = "gohass"
	DefaultMQTTTopicPrefix         = "gohass"
	DefaultMQTTPublishInterval     = time.Minute
	DefaultClausiusBaseURL         = "http://192.168.10.2"
	DefaultClausiusScanInterval    = 30 * time.Second
	DefaultWebOSKeyFile            = "/var/lib/gohass/webostv.conf"
	DefaultWebOSName               = "LG webOS Smart TV"
	DefaultUptimeRobotBaseURL      = "https://api.uptimerobot.com/v2"
	DefaultUptimeRobotScanInterval = 60 * time.Second
	DefaultUptimeRobotRPM          = 10
)

// Loader merges defaults, YAML files and environment overrides, in that order.
type Loader struct {
	envPrefix string
	files     []string
}

func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{envPrefix: envPrefix, files: files}
}

// Load reads the config file at path with GOHASS_ environment overrides.
func Load(path string) (*Config, error) {
	return NewLoader(EnvPrefix, path).Load(context.Background())
}

func (l *Loader) Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: file %s not found", path)
			}
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		prefix := l.envPrefix + "_"
		transform := func(s string) string {
			// GOHASS_CLAUSIUS__BASE_URL -> clausius.base_url
			key := strings.TrimPrefix(s, prefix)
			return strings.ToLower(strings.ReplaceAll(key, "__", "."))
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return nil, fmt.Errorf("config: load env: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		"core": map[string]any{
			"grpc_addr":             DefaultGRPCAddr,
			"http_addr":             DefaultHTTPAddr,
			"dashboard_dir":         DefaultDashboardDir,
			"sync_interval_seconds": int(DefaultSyncInterval / time.Second),
		},
		"logging": map[string]any{
			"level":  DefaultLogLevel,
			"format": DefaultLogFormat,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Blob != nil && cfg.Blob.Prefix == "" {
		cfg.Blob.Prefix = DefaultBlobPrefix
	}
	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" && cfg.MQTT.EmbeddedAddr != "" {
			cfg.MQTT.Broker = "tcp://" + cfg.MQTT.EmbeddedAddr
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = DefaultMQTTClientID
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
		}
	}
	if cfg.Clausius != nil && cfg.Clausius.BaseURL == "" {
		cfg.Clausius.BaseURL = DefaultClausiusBaseURL
	}
	if cfg.WebOSTV != nil {
		if cfg.WebOSTV.KeyFile == "" {
			cfg.WebOSTV.KeyFile = DefaultWebOSKeyFile
		}
		for i := range cfg.WebOSTV.Devices {
			if cfg.WebOSTV.Devices[i].Name == "" {
				cfg.WebOSTV.Devices[i].Name = DefaultWebOSName
			}
		}
	}
	if cfg.UptimeRobot != nil {
		if cfg.UptimeRobot.BaseURL == "" {
			cfg.UptimeRobot.BaseURL = DefaultUptimeRobotBaseURL
		}
		if cfg.UptimeRobot.RequestsPerMinute == 0 {
			cfg.UptimeRobot.RequestsPerMinute = DefaultUptimeRobotRPM
		}
	}
}

// Validate enforces required invariants beyond typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", cfg.Logging.Format)
	}

	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}
	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.Clausius != nil {
		if err := validateHTTPURL("clausius.base_url", cfg.Clausius.BaseURL); err != nil {
			return err
		}
	}
	if cfg.WebOSTV != nil {
		for i, device := range cfg.WebOSTV.Devices {
			if device.Host == "" {
				return fmt.Errorf("webostv.devices[%d].host is required", i)
			}
		}
	}
	if cfg.UptimeRobot != nil {
		if err := validateHTTPURL("uptimerobot.base_url", cfg.UptimeRobot.BaseURL); err != nil {
			return err
		}
		if cfg.UptimeRobot.RequestsPerMinute < 0 {
			return fmt.Errorf("uptimerobot.requests_per_minute must not be negative")
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Clausius != nil {
		enabled["clausius"] = true
	}
	if cfg.WebOSTV != nil {
		enabled["webostv"] = true
	}
	if cfg.UptimeRobot != nil {
		enabled["uptimerobot"] = true
	}
	return enabled
}

// ReadSecret reads a credential file and trims surrounding whitespace.
func ReadSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
