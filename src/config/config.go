package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/stoq/stoqserver/src/environ"
)

// EnvPrefix is the prefix for environment overrides of config keys.
// server.max_inflight is overridden by STOQSERVER_SERVER_MAX_INFLIGHT.
const EnvPrefix = "STOQSERVER"

// FileName is the config file looked up in the config directory
const FileName = "stoqserver.yml"

// DefaultExtensions are the extension archives shipped with the server
var DefaultExtensions = []string{
	"stoq.egg",
	"kiwi.egg",
	"stoqdrivers.egg",
}

// DefaultBundleSuffixes are the file extensions treated as bundle archives
var DefaultBundleSuffixes = []string{".egg", ".whl"}

// Config represents the complete application configuration
type Config struct {
	Mode   string `mapstructure:"mode" yaml:"mode"`
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
	Frozen bool   `mapstructure:"frozen" yaml:"frozen"`

	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Extensions ExtensionsConfig `mapstructure:"extensions" yaml:"extensions"`
	Paths      PathsConfig      `mapstructure:"paths" yaml:"paths"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`

	path string
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Address     string `mapstructure:"address" yaml:"address"`
	Port        int    `mapstructure:"port" yaml:"port"`
	MaxInFlight int    `mapstructure:"max_inflight" yaml:"max_inflight"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpen  int    `mapstructure:"max_open" yaml:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle" yaml:"max_idle"`
	Lifetime int    `mapstructure:"lifetime" yaml:"lifetime"` // seconds
}

// ExtensionsConfig lists the extension archives looked up at startup
type ExtensionsConfig struct {
	Names    []string `mapstructure:"names" yaml:"names"`
	Suffixes []string `mapstructure:"suffixes" yaml:"suffixes"`
}

// PathsConfig overrides directories that are otherwise derived from the OS layout
type PathsConfig struct {
	Resources string `mapstructure:"resources" yaml:"resources"`
	Cache     string `mapstructure:"cache" yaml:"cache"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	File     string `mapstructure:"file" yaml:"file"`
	MaxSize  int    `mapstructure:"max_size" yaml:"max_size"`   // MB
	MaxFiles int    `mapstructure:"max_files" yaml:"max_files"`
}

// Path returns the file the config was loaded from, or "" for defaults only
func (c *Config) Path() string {
	return c.path
}

// sliceKeys are split on commas when they come from the environment
var sliceKeys = map[string]bool{
	"extensions.names":    true,
	"extensions.suffixes": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "production")
	v.SetDefault("debug", false)
	v.SetDefault("frozen", false)

	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 6970)
	v.SetDefault("server.max_inflight", 64)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "postgres://stoq@localhost:5432/stoq")
	v.SetDefault("database.max_open", 10)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.lifetime", 300)

	v.SetDefault("extensions.names", DefaultExtensions)
	v.SetDefault("extensions.suffixes", DefaultBundleSuffixes)

	v.SetDefault("paths.resources", "")
	v.SetDefault("paths.cache", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_files", 5)
}

// EnvName returns the environment variable that overrides key
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads path (if it exists) and applies overrides from env.
// A missing file is not an error: the defaults are used.
func Load(path string, env environ.Env) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	loaded := ""
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			loaded = path
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	// Overrides come from the injected environment, not os.Getenv, so
	// viper.AutomaticEnv is not used here.
	for _, key := range v.AllKeys() {
		val, ok := env.Lookup(EnvName(key))
		if !ok {
			continue
		}
		if sliceKeys[key] {
			v.Set(key, splitList(val))
			continue
		}
		if cur, isBool := v.Get(key).(bool); isBool {
			b, err := ParseBool(val, cur)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", EnvName(key), err)
			}
			v.Set(key, b)
			continue
		}
		v.Set(key, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.path = loaded

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make startup unsafe
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("server.max_inflight must be at least 1"))
	}
	if c.Database.Driver == "" {
		errs = append(errs, fmt.Errorf("database.driver is required"))
	}
	if c.Database.MaxOpen < 1 {
		errs = append(errs, fmt.Errorf("database.max_open must be at least 1"))
	}
	for _, s := range c.Extensions.Suffixes {
		if !strings.HasPrefix(s, ".") {
			errs = append(errs, fmt.Errorf("extensions.suffixes: %q must start with a dot", s))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
