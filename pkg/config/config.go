package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/herald/pkg/types"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. HERALD_LOG_LEVEL
const EnvPrefix = "HERALD"

// Config represents the complete herald daemon configuration
type Config struct {
	// Address is the component address this daemon owns
	Address types.Address `mapstructure:"address" yaml:"address"`
	// Listen is the UDP address packets are received on
	Listen string `mapstructure:"listen" yaml:"listen"`
	// DataDir holds the subscription journal
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	Peers     []PeerConfig    `mapstructure:"peers" yaml:"peers,omitempty"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Timing    TimingConfig    `mapstructure:"timing" yaml:"timing"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
}

// PeerConfig is a statically known remote component
type PeerConfig struct {
	Address  types.Address `mapstructure:"address" yaml:"address"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
}

// LogConfig controls logging output
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// MetricsConfig controls the Prometheus and health endpoints
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TimingConfig holds every interval and timeout of the daemon
type TimingConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	PeerTimeout       time.Duration `mapstructure:"peer_timeout" yaml:"peer_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	SchedulerTick     time.Duration `mapstructure:"scheduler_tick" yaml:"scheduler_tick"`
}

// TransportConfig limits outbound traffic
type TransportConfig struct {
	// SendRate is packets per second, 0 disables limiting
	SendRate  float64 `mapstructure:"send_rate" yaml:"send_rate"`
	SendBurst int     `mapstructure:"send_burst" yaml:"send_burst"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Listen:  "0.0.0.0:3794",
		DataDir: "./herald-data",
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
		Timing: TimingConfig{
			RequestTimeout:    2 * time.Second,
			HeartbeatInterval: time.Second,
			PeerTimeout:       5 * time.Second,
			SweepInterval:     time.Second,
			SchedulerTick:     10 * time.Millisecond,
		},
		Transport: TransportConfig{
			SendRate:  1000,
			SendBurst: 100,
		},
	}
}

// SetDefaults registers the defaults on v so environment overrides work for
// keys absent from the config file
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// The address has no default; binding makes HERALD_ADDRESS visible
	_ = v.BindEnv("address")
	v.SetDefault("listen", defaults.Listen)
	v.SetDefault("data_dir", defaults.DataDir)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.json", defaults.Log.JSON)

	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)

	v.SetDefault("timing.request_timeout", defaults.Timing.RequestTimeout)
	v.SetDefault("timing.heartbeat_interval", defaults.Timing.HeartbeatInterval)
	v.SetDefault("timing.peer_timeout", defaults.Timing.PeerTimeout)
	v.SetDefault("timing.sweep_interval", defaults.Timing.SweepInterval)
	v.SetDefault("timing.scheduler_tick", defaults.Timing.SchedulerTick)

	v.SetDefault("transport.send_rate", defaults.Transport.SendRate)
	v.SetDefault("transport.send_burst", defaults.Transport.SendBurst)
}

// NewViper returns a viper instance with defaults and environment
// overrides applied. path selects the config file; when empty herald.yaml
// is searched in the working directory and /etc/herald.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("herald")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/herald")
	}

	v.SetEnvPrefix(EnvPrefix)
	// HERALD_TIMING_PEER_TIMEOUT for timing.peer_timeout
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command line flags to the config keys they override
var flagKeys = map[string]string{
	"address":      "address",
	"listen":       "listen",
	"data-dir":     "data_dir",
	"log-level":    "log.level",
	"log-json":     "log.json",
	"metrics-addr": "metrics.addr",
}

// Load reads the configuration file at path (or the default search path),
// applies environment overrides and the flags of flags that were set, and
// validates the result. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := NewViper(path)
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Write stores c as YAML at path, creating parent directories
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
