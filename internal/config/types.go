package config

import "time"

// Config is the daemon configuration. Plugin sections are optional; a
// present section enables its plugin.
type Config struct {
	Core        CoreConfig         `koanf:"core"`
	Logging     LoggingConfig      `koanf:"logging"`
	Blob        *BlobConfig        `koanf:"blob"`
	MQTT        *MQTTConfig        `koanf:"mqtt"`
	Clausius    *ClausiusConfig    `koanf:"clausius"`
	WebOSTV     *WebOSTVConfig     `koanf:"webostv"`
	UptimeRobot *UptimeRobotConfig `koanf:"uptimerobot"`
}

type CoreConfig struct {
	GRPCAddr            string `koanf:"grpc_addr"`
	HTTPAddr            string `koanf:"http_addr"`
	DashboardDir        string `koanf:"dashboard_dir"`
	SyncIntervalSeconds int    `koanf:"sync_interval_seconds"`
}

func (c CoreConfig) SyncInterval() time.Duration {
	return seconds(c.SyncIntervalSeconds, DefaultSyncInterval)
}

type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// BlobConfig points at an S3-compatible bucket. Credentials are read from files.
type BlobConfig struct {
	Endpoint      string `koanf:"endpoint"`
	Bucket        string `koanf:"bucket"`
	AccessKeyFile string `koanf:"access_key_file"`
	SecretKeyFile string `koanf:"secret_key_file"`
	Prefix        string `koanf:"prefix"`
	Insecure      bool   `koanf:"insecure"`
}

// MQTTConfig connects the state bridge to a broker. EmbeddedAddr starts an
// in-process broker on that address and points Broker at it when empty.
type MQTTConfig struct {
	EmbeddedAddr           string `koanf:"embedded_addr"`
	Broker                 string `koanf:"broker"`
	ClientID               string `koanf:"client_id"`
	Username               string `koanf:"username"`
	PasswordFile           string `koanf:"password_file"`
	TopicPrefix            string `koanf:"topic_prefix"`
	PublishIntervalSeconds int    `koanf:"publish_interval_seconds"`
}

func (c *MQTTConfig) PublishInterval() time.Duration {
	return seconds(c.PublishIntervalSeconds, DefaultMQTTPublishInterval)
}

type ClausiusConfig struct {
	BaseURL             string `koanf:"base_url"`
	ScanIntervalSeconds int    `koanf:"scan_interval_seconds"`
}

func (c *ClausiusConfig) ScanInterval() time.Duration {
	return seconds(c.ScanIntervalSeconds, DefaultClausiusScanInterval)
}

// WebOSTVConfig holds legacy TV definitions imported as config entries at
// startup, plus the client-key file shared by all TVs.
type WebOSTVConfig struct {
	KeyFile string        `koanf:"key_file"`
	Devices []WebOSDevice `koanf:"devices"`
}

type WebOSDevice struct {
	Host      string         `koanf:"host"`
	Name      string         `koanf:"name"`
	Icon      string         `koanf:"icon"`
	Customize WebOSCustomize `koanf:"customize"`
}

type WebOSCustomize struct {
	Sources []string `koanf:"sources"`
}

type UptimeRobotConfig struct {
	BaseURL             string `koanf:"base_url"`
	ScanIntervalSeconds int    `koanf:"scan_interval_seconds"`
	RequestsPerMinute   int    `koanf:"requests_per_minute"`
}

func (c *UptimeRobotConfig) ScanInterval() time.Duration {
	return seconds(c.ScanIntervalSeconds, DefaultUptimeRobotScanInterval)
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value > 0 {
		return time.Duration(value) * time.Second
	}
	return fallback
}
