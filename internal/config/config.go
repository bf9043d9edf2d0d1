// Package config loads arc-ledger server configuration from defaults, a YAML
// file (ledger.yaml) or an explicit --config file in any format viper reads, ARC_LEDGER_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-ledger/internal/storage"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ARC_LEDGER"

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Directory     DirectoryConfig     `mapstructure:"directory"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ObservabilityConfig struct {
	LogLevel       string  `mapstructure:"log_level"`
	LogFormat      string  `mapstructure:"log_format"`
	MetricsAddr    string  `mapstructure:"metrics_addr"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string  `mapstructure:"otlp_protocol"`
	SampleRatio    float64 `mapstructure:"trace_sample_ratio"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
}

// StorageConfig selects the record backend behind the directory and mailbox.
type StorageConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

type DirectoryConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// DefaultDataDir returns ~/.arc/ledger, or .arc/ledger without a home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".arc", "ledger")
	}
	return filepath.Join(home, ".arc", "ledger")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())

	v.SetDefault("http.addr", ":6000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "auto")
	v.SetDefault("observability.metrics_addr", ":9090")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.service_name", "arc-ledger")
	v.SetDefault("observability.service_version", "dev")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("directory.cache_size", 1024)
}

// BindServeFlags binds the start command's flags to viper.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("data-dir", "", "data directory (default ~/.arc/ledger)")
	f.String("addr", "", "HTTP listen address")
	f.String("config", "", "config file path (yaml, toml or json; default search for ledger.yaml)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (auto, json, text)")
	f.String("metrics-addr", "", "metrics HTTP listen address (empty disables)")
	f.String("storage", "", "record backend (memory, badger, sqlite, redis)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("http.addr", f.Lookup("addr"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("storage.backend", f.Lookup("storage"))
}

// Load reads config from flags, env, and file, returning the merged Config.
// A missing config file is only an error when configFile names it.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.arc/ledger")
		v.AddConfigPath("/etc/arc/ledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that viper cannot.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr cannot be empty")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		return errors.New("config: http timeouts cannot be negative")
	}
	if c.Directory.CacheSize < 0 {
		return errors.New("config: directory.cache_size cannot be negative")
	}
	switch strings.ToLower(c.Observability.OTLPProtocol) {
	case "", "http", "grpc":
	default:
		return fmt.Errorf("config: observability.otlp_protocol %q must be http or grpc", c.Observability.OTLPProtocol)
	}
	if r := c.Observability.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("config: observability.trace_sample_ratio %v must be within [0, 1]", r)
	}
	return nil
}

// StorageOptions returns the backend options, placing file-backed stores
// under data_dir unless a path was configured.
func (c Config) StorageOptions() storage.Options {
	opts := storage.Options{}
	for k, v := range c.Storage.Config {
		opts[k] = v
	}
	if opts.GetString("path", "") != "" {
		return opts
	}
	switch c.Storage.Backend {
	case "badger":
		opts["path"] = filepath.Join(c.DataDir, "records")
	case "sqlite":
		opts["path"] = filepath.Join(c.DataDir, "records.db")
	}
	return opts
}
