// Package config loads the daemon's YAML configuration through viper,
// layering environment variable overrides and defaults on top of the
// file, then validates the result with struct tags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultConfigPath is used when no -c/--config flag is given.
const DefaultConfigPath = "config/mutt.yaml"

// Config is the root configuration document.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Listeners ListenersConfig `mapstructure:"listeners" yaml:"listeners"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	RulesFile              string `mapstructure:"rules_file" validate:"required" yaml:"rules_file"`
	SNMPv3CredentialsFile  string `mapstructure:"snmpv3_credentials_file" yaml:"snmpv3_credentials_file"`
	RetentionDays          int    `mapstructure:"retention_days" validate:"gt=0" yaml:"retention_days"`
	BatchWriteIntervalSecs int    `mapstructure:"batch_write_interval" validate:"gt=0" yaml:"batch_write_interval"`
}

// StorageConfig configures the relational store and the on-disk staging
// areas that feed it.
type StorageConfig struct {
	// DBPath is the SQLite file path, or a postgres:// DSN when Driver is postgres.
	DBPath     string `mapstructure:"db_path" validate:"required" yaml:"db_path"`
	Driver     string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres" yaml:"driver,omitempty"`
	BufferDir  string `mapstructure:"buffer_dir" validate:"required" yaml:"buffer_dir"`
	ArchiveDir string `mapstructure:"archive_dir" validate:"required" yaml:"archive_dir"`
}

// ListenersConfig configures the two UDP ingestion endpoints.
type ListenersConfig struct {
	Syslog SyslogListenerConfig `mapstructure:"syslog" yaml:"syslog"`
	SNMP   SNMPListenerConfig   `mapstructure:"snmp" yaml:"snmp"`
}

// SyslogListenerConfig configures the RFC 3164 UDP listener.
type SyslogListenerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" validate:"required_if=Enabled true" yaml:"host"`
	Port    int    `mapstructure:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535" yaml:"port"`
}

// SNMPListenerConfig configures the v1/v2c/v3 trap listener.
type SNMPListenerConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Host        string   `mapstructure:"host" validate:"required_if=Enabled true" yaml:"host"`
	Port        int      `mapstructure:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535" yaml:"port"`
	Communities []string `mapstructure:"communities" yaml:"communities"`
}

// LoggingConfig controls where and how the daemon logs.
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" validate:"required_if=Enabled true" yaml:"host"`
	Port    int    `mapstructure:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535" yaml:"port"`
}

// ApplyDefaults fills any zero-valued field with its documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.BufferDir == "" {
		cfg.Storage.BufferDir = "buffer"
	}
	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = "archives"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Listeners.Syslog.Host == "" {
		cfg.Listeners.Syslog.Host = "0.0.0.0"
	}
	if cfg.Listeners.Syslog.Port == 0 {
		cfg.Listeners.Syslog.Port = 5514
	}
	if cfg.Listeners.SNMP.Host == "" {
		cfg.Listeners.SNMP.Host = "0.0.0.0"
	}
	if cfg.Listeners.SNMP.Port == 0 {
		cfg.Listeners.SNMP.Port = 5162
	}
	if len(cfg.Listeners.SNMP.Communities) == 0 {
		cfg.Listeners.SNMP.Communities = []string{"public"}
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}
	if cfg.BatchWriteIntervalSecs == 0 {
		cfg.BatchWriteIntervalSecs = 2
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "stdout"
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "0.0.0.0"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// BatchWriteInterval returns BatchWriteIntervalSecs as a time.Duration.
func (c Config) BatchWriteInterval() time.Duration {
	return time.Duration(c.BatchWriteIntervalSecs) * time.Second
}

// RetentionPeriod returns RetentionDays as a time.Duration.
func (c Config) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg, returning every failing
// field in a single error.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load reads configPath (DefaultConfigPath when empty), applies defaults,
// and validates the result. A missing file is not an error, but then the
// file's values and environment overrides are both skipped and only
// defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupViper wires environment variable overrides (MUTTD_ prefix) and the
// config file location.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MUTTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}
}

// readConfigFile reads the configured file, treating "file does not
// exist" as acceptable (defaults apply) rather than fatal.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets duration-shaped config keys accept either a
// plain integer (seconds are handled by the typed fields above) or a
// human-readable string such as "30s" for any future time.Duration field.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
