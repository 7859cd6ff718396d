package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Compute backends
const (
	BackendEC2  = "ec2"
	BackendNATS = "nats"
	BackendMock = "mock"
)

// Config holds all configuration for the application
type Config struct {
	Backend  string `mapstructure:"backend"`
	Region   string `mapstructure:"region"` // Empty leaves resolution to the SDK (env, then shared config profile)
	Endpoint string `mapstructure:"endpoint"` // Optional EC2 endpoint, e.g. a Hive gateway
	Insecure bool   `mapstructure:"insecure"` // Skip TLS verification against Endpoint
	LogLevel string `mapstructure:"log_level"`

	NATS    NATSConfig    `mapstructure:"nats"`
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Authentication, falls back to the AWS SDK credential chain when unset
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
}

// NATSConfig holds the NATS configuration, used both by the nats backend and
// by the invocation subscriber.
type NATSConfig struct {
	Host    string        `mapstructure:"host"`
	ACL     NATSACL       `mapstructure:"acl"`
	Sub     NATSSub       `mapstructure:"sub"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NATSACL holds the NATS ACL configuration
type NATSACL struct {
	Token string `mapstructure:"token"`
}

// NATSSub holds the NATS subscription configuration
type NATSSub struct {
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

// GatewayConfig holds the HTTP gateway configuration
type GatewayConfig struct {
	Host           string `mapstructure:"host"`
	DisableLogging bool   `mapstructure:"disable_logging"`
}

// setDefaults registers every key so environment variables resolve even when
// no config file sets them.
func setDefaults() {
	viper.SetDefault("backend", BackendEC2)
	viper.SetDefault("region", "")
	viper.SetDefault("endpoint", "")
	viper.SetDefault("insecure", false)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("accesskey", "")
	viper.SetDefault("secretkey", "")

	viper.SetDefault("nats.host", "")
	viper.SetDefault("nats.acl.token", "")
	viper.SetDefault("nats.sub.subject", "scheduler.invoke")
	viper.SetDefault("nats.sub.queue", "scheduler-workers")
	viper.SetDefault("nats.timeout", "0s")

	viper.SetDefault("gateway.host", "0.0.0.0:8090")
	viper.SetDefault("gateway.disable_logging", false)
}

// LoadConfig loads the configuration from file and environment variables.
// Environment variables use the SCHEDULER_ prefix with dots replaced by
// underscores (SCHEDULER_NATS_HOST); region also honours AWS_REGION.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetEnvPrefix("SCHEDULER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("region", "SCHEDULER_REGION", "AWS_REGION")

	setDefaults()

	// Try to load config file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			viper.SetConfigFile(configPath)
			viper.SetConfigType("toml")

			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			slog.Debug("Using config file", "path", viper.ConfigFileUsed())
		} else {
			fmt.Fprintf(os.Stderr, "Config file not found: %s, using environment variables and defaults\n", configPath)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the backend selection and its required fields.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendEC2, BackendMock:
	case BackendNATS:
		if c.NATS.Host == "" {
			return fmt.Errorf("NATS host is required for the %s backend", BackendNATS)
		}
	default:
		return fmt.Errorf("unknown backend %q, must be one of %s, %s, %s", c.Backend, BackendEC2, BackendNATS, BackendMock)
	}

	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access key and secret key must be set together")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLogLevel maps a config log level onto slog. Empty means info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

type dumpNATS struct {
	Host    string      `toml:"host"`
	Timeout string      `toml:"timeout"`
	ACL     dumpNATSACL `toml:"acl"`
	Sub     dumpNATSSub `toml:"sub"`
}

type dumpNATSACL struct {
	Token string `toml:"token"`
}

type dumpNATSSub struct {
	Subject string `toml:"subject"`
	Queue   string `toml:"queue"`
}

type dumpGateway struct {
	Host           string `toml:"host"`
	DisableLogging bool   `toml:"disable_logging"`
}

type dumpConfig struct {
	Backend   string      `toml:"backend"`
	Region    string      `toml:"region"`
	Endpoint  string      `toml:"endpoint,omitempty"`
	Insecure  bool        `toml:"insecure"`
	LogLevel  string      `toml:"log_level"`
	AccessKey string      `toml:"accesskey,omitempty"`
	SecretKey string      `toml:"secretkey,omitempty"`
	NATS      dumpNATS    `toml:"nats"`
	Gateway   dumpGateway `toml:"gateway"`
}

const redacted = "********"

// Dump renders the effective configuration as TOML with secrets redacted.
func (c *Config) Dump() ([]byte, error) {
	d := dumpConfig{
		Backend:   c.Backend,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		Insecure:  c.Insecure,
		LogLevel:  c.LogLevel,
		AccessKey: c.AccessKey,
		NATS: dumpNATS{
			Host:    c.NATS.Host,
			Timeout: c.NATS.Timeout.String(),
			Sub:     dumpNATSSub{Subject: c.NATS.Sub.Subject, Queue: c.NATS.Sub.Queue},
		},
		Gateway: dumpGateway{
			Host:           c.Gateway.Host,
			DisableLogging: c.Gateway.DisableLogging,
		},
	}
	if c.SecretKey != "" {
		d.SecretKey = redacted
	}
	if c.NATS.ACL.Token != "" {
		d.NATS.ACL.Token = redacted
	}

	out, err := toml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return out, nil
}
