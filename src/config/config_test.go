package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stoq/stoqserver/src/environ"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", environ.Env{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 6970 {
		t.Errorf("Server.Port = %d, want 6970", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if !reflect.DeepEqual(cfg.Extensions.Names, DefaultExtensions) {
		t.Errorf("Extensions.Names = %v, want %v", cfg.Extensions.Names, DefaultExtensions)
	}
	if !reflect.DeepEqual(cfg.Extensions.Suffixes, DefaultBundleSuffixes) {
		t.Errorf("Extensions.Suffixes = %v, want %v", cfg.Extensions.Suffixes, DefaultBundleSuffixes)
	}
	if cfg.Frozen {
		t.Error("Frozen should default to false")
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg, err := Load(path, environ.Env{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty for missing file", cfg.Path())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := `
mode: development
server:
  port: 8080
  max_inflight: 4
database:
  driver: sqlite
  dsn: /tmp/stoq.db
extensions:
  names: [a.egg, b.egg]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, environ.Env{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if cfg.Mode != "development" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Server.Port != 8080 || cfg.Server.MaxInFlight != 4 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Address != "127.0.0.1" {
		t.Errorf("Server.Address = %q, default should survive partial section", cfg.Server.Address)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "/tmp/stoq.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if !reflect.DeepEqual(cfg.Extensions.Names, []string{"a.egg", "b.egg"}) {
		t.Errorf("Extensions.Names = %v", cfg.Extensions.Names)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := environ.FromList([]string{
		"STOQSERVER_SERVER_PORT=7000",
		"STOQSERVER_FROZEN=yes",
		"STOQSERVER_EXTENSIONS_NAMES=x.egg, y.egg,,",
		"STOQSERVER_DATABASE_DRIVER=mysql",
		"UNRELATED=1",
	})

	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if !cfg.Frozen {
		t.Error("Frozen should be true from STOQSERVER_FROZEN=yes")
	}
	if !reflect.DeepEqual(cfg.Extensions.Names, []string{"x.egg", "y.egg"}) {
		t.Errorf("Extensions.Names = %v", cfg.Extensions.Names)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
}

func TestLoadEnvInvalidBool(t *testing.T) {
	env := environ.FromList([]string{"STOQSERVER_DEBUG=maybe"})
	_, err := Load("", env)
	if err == nil || !strings.Contains(err.Error(), "STOQSERVER_DEBUG") {
		t.Errorf("Load() error = %v, want error naming STOQSERVER_DEBUG", err)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, environ.Env{}); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("", environ.Env{})
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"inflight", func(c *Config) { c.Server.MaxInFlight = 0 }, "max_inflight"},
		{"driver", func(c *Config) { c.Database.Driver = "" }, "database.driver"},
		{"max open", func(c *Config) { c.Database.MaxOpen = 0 }, "max_open"},
		{"suffix", func(c *Config) { c.Extensions.Suffixes = []string{"egg"} }, "must start with a dot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("server.max_inflight"); got != "STOQSERVER_SERVER_MAX_INFLIGHT" {
		t.Errorf("EnvName() = %q", got)
	}
}
