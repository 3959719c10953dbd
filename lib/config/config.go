// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "TRACKER_GATEWAY_CONFIG"

// ErrNoConfig is returned by [Load] when EnvironmentVariable is unset.
var ErrNoConfig = errors.New(EnvironmentVariable + " environment variable not set")

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete gateway configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Listen is the TCP address trackers connect to (e.g. ":5004").
	Listen string `yaml:"listen"`

	// Broker configures the MQTT connection.
	Broker BrokerConfig `yaml:"broker"`

	// Subscriptions are the topic patterns subscribed on every broker
	// (re)connect. Command topics have the form <prefix>/<device>/cmd.
	Subscriptions []string `yaml:"subscriptions"`

	// Topics configures the outbound topic prefixes.
	Topics TopicsConfig `yaml:"topics"`

	// Paths configures files and directories the gateway writes.
	Paths PathsConfig `yaml:"paths"`

	// DataLog configures rotation of the global raw log.
	DataLog DataLogConfig `yaml:"datalog"`

	// Gateway configures the event loop.
	Gateway GatewayConfig `yaml:"gateway"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields that may differ per environment.
// Typically only the broker endpoint and its credentials change between
// a staging and a production deployment.
type ConfigOverrides struct {
	Listen string        `yaml:"listen,omitempty"`
	Broker *BrokerConfig `yaml:"broker,omitempty"`
}

// BrokerConfig configures the MQTT client.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ProtocolVersion is "mqttv31" or "mqttv311". It is checked by
	// broker.ParseProtocolVersion rather than Validate, so that an
	// invalid value can be reported with its own exit status.
	ProtocolVersion string `yaml:"protocol_version"`

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration `yaml:"keepalive"`

	// CleanSession requests a clean MQTT session on connect.
	CleanSession bool `yaml:"clean_session"`

	// TLS is enabled when CAFile or CAPath is set.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig names the TLS material for the broker connection.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CAPath   string `yaml:"ca_path"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether TLS material has been configured.
func (t TLSConfig) Enabled() bool {
	return t.CAFile != "" || t.CAPath != ""
}

// TopicsConfig configures outbound topic prefixes.
type TopicsConfig struct {
	// Raw is the raw-backup prefix; every record is published to
	// <Raw>/<device-id-or-placeholder>.
	Raw string `yaml:"raw"`

	// Report receives admin command replies (list, stats, ping). Empty
	// disables publishing them; they are still logged.
	Report string `yaml:"report"`

	// Offline is the prefix for pseudo offline notifications, published
	// to <Offline>/<device-id> when a device's last connection closes.
	Offline string `yaml:"offline"`
}

// PathsConfig configures files and directories.
type PathsConfig struct {
	// LogFile receives the gateway's own structured log. Empty means
	// stderr.
	LogFile string `yaml:"log_file"`

	// DataLog is the stable path of the global raw log. Empty disables
	// it.
	DataLog string `yaml:"data_log"`

	// RecordsDir holds per-device files data-<device-id>. Empty
	// disables them.
	RecordsDir string `yaml:"records_dir"`

	// DumpDir receives counters.cbor on the "dump" admin command.
	DumpDir string `yaml:"dump_dir"`
}

// DataLogConfig configures global raw log rotation.
type DataLogConfig struct {
	// RotateBytes is the size above which the log is rotated.
	RotateBytes int64 `yaml:"rotate_bytes"`

	// Compression is applied to rotated archives: "none", "zstd" or
	// "lz4".
	Compression string `yaml:"compression"`
}

// GatewayConfig configures the event loop.
type GatewayConfig struct {
	// TickInterval is the period of the record-processing tick.
	TickInterval time.Duration `yaml:"tick_interval"`

	// IdleTimeout closes connections that have received nothing for
	// this long. Trackers heartbeat at least every 15 minutes.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// WriteTimeout bounds a single write to a device socket.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IgnoreDevice is a device id that never produces an offline
	// notification (a bench unit, for example).
	IgnoreDevice string `yaml:"ignore_device"`

	// Placeholder replaces the device id in the raw-backup topic when
	// the record could not be attributed.
	Placeholder string `yaml:"placeholder"`

	// DebugHex logs a hex dump of every received chunk at debug level.
	DebugHex bool `yaml:"debug_hex"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics. Empty disables the
	// endpoint; counters are still kept for the admin commands.
	Listen string `yaml:"listen"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration a file is overlaid onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen:      ":5004",
		Broker: BrokerConfig{
			Host:            "localhost",
			Port:            1883,
			ClientID:        "tracker-gateway",
			ProtocolVersion: "mqttv311",
			KeepAlive:       60 * time.Second,
			CleanSession:    true,
		},
		Subscriptions: []string{"tracker/+/cmd"},
		Topics: TopicsConfig{
			Raw:     "tracker/raw",
			Report:  "tracker/report",
			Offline: "tracker/lwt",
		},
		DataLog: DataLogConfig{
			RotateBytes: 10 * 1024 * 1024,
			Compression: "none",
		},
		Gateway: GatewayConfig{
			TickInterval: time.Second,
			IdleTimeout:  20 * time.Minute,
			WriteTimeout: 10 * time.Second,
			IgnoreDevice: "123456789012345",
			Placeholder:  "unknown",
		},
		Metrics: MetricsConfig{
			Namespace: "tracker_gateway",
		},
	}
}

// Load loads configuration from the file named by EnvironmentVariable.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%w; set it to the path of your gateway config file, or use --config", ErrNoConfig)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. Files ending in .json or
// .jsonc are read as JSON with comments and trailing commas; anything
// else is YAML. The result is not validated; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// YAML is a superset of JSON, so the stripped document goes
		// through the same decoder and the same struct tags.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if broker := overrides.Broker; broker != nil {
		if broker.Host != "" {
			c.Broker.Host = broker.Host
		}
		if broker.Port != 0 {
			c.Broker.Port = broker.Port
		}
		if broker.ClientID != "" {
			c.Broker.ClientID = broker.ClientID
		}
		if broker.Username != "" {
			c.Broker.Username = broker.Username
		}
		if broker.Password != "" {
			c.Broker.Password = broker.Password
		}
		if broker.TLS.Enabled() {
			c.Broker.TLS = broker.TLS
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in paths and
// broker credentials, so secrets can live in the service environment
// rather than in the file.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Paths.LogFile,
		&c.Paths.DataLog,
		&c.Paths.RecordsDir,
		&c.Paths.DumpDir,
		&c.Broker.Username,
		&c.Broker.Password,
		&c.Broker.TLS.CAFile,
		&c.Broker.TLS.CAPath,
		&c.Broker.TLS.CertFile,
		&c.Broker.TLS.KeyFile,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and returns every problem found,
// joined.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}

	if c.Broker.Host == "" {
		errs = append(errs, fmt.Errorf("broker.host is required"))
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port %d out of range", c.Broker.Port))
	}
	if c.Broker.KeepAlive < 0 {
		errs = append(errs, fmt.Errorf("broker.keepalive must not be negative"))
	}
	if (c.Broker.TLS.CertFile == "") != (c.Broker.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("broker.tls.cert_file and broker.tls.key_file must be set together"))
	}

	for index, pattern := range c.Subscriptions {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, fmt.Errorf("subscriptions[%d] is empty", index))
		}
	}
	if c.Topics.Raw == "" {
		errs = append(errs, fmt.Errorf("topics.raw is required"))
	}

	if c.DataLog.RotateBytes <= 0 {
		errs = append(errs, fmt.Errorf("datalog.rotate_bytes must be positive"))
	}
	compressions := []string{"none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.DataLog.Compression) {
		errs = append(errs, fmt.Errorf("datalog.compression must be one of: %v", compressions))
	}

	if c.Gateway.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("gateway.tick_interval must be positive"))
	}
	if c.Gateway.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.idle_timeout must be positive"))
	}
	if c.Gateway.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.write_timeout must not be negative"))
	}
	if c.Gateway.Placeholder == "" {
		errs = append(errs, fmt.Errorf("gateway.placeholder is required"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the directories the gateway writes into.
func (c *Config) EnsurePaths() error {
	directories := []string{c.Paths.RecordsDir, c.Paths.DumpDir}
	for _, file := range []string{c.Paths.LogFile, c.Paths.DataLog} {
		if file != "" {
			directories = append(directories, filepath.Dir(file))
		}
	}
	for _, directory := range directories {
		if directory == "" {
			continue
		}
		if err := os.MkdirAll(directory, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
