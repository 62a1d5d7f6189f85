// Package config loads application settings from .aether/config.yaml files
// and AETHER_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Dir is the per-user and per-project configuration directory.
const Dir = ".aether"

// EnvPrefix prefixes every environment override (AETHER_STORE_PATH, ...).
const EnvPrefix = "AETHER"

// Config represents the full Aether configuration
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	User   UserConfig   `yaml:"user" mapstructure:"user"`
}

// StoreConfig selects the storage adapter and, for hosted clients, the
// endpoint handed out by GET /api/config.
type StoreConfig struct {
	Adapter    string `yaml:"adapter" mapstructure:"adapter"`
	Path       string `yaml:"path" mapstructure:"path"`
	Versioning bool   `yaml:"versioning" mapstructure:"versioning"`
	URL        string `yaml:"url" mapstructure:"url"`
	AnonKey    string `yaml:"anon_key" mapstructure:"anon_key"`
}

// ServerConfig configures `aether serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// UserConfig is the identity the CLI signs in as.
type UserConfig struct {
	Email string `yaml:"email" mapstructure:"email"`
	Name  string `yaml:"name" mapstructure:"name"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Adapter:    "fs",
			Path:       ".",
			Versioning: true,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load merges the global config, then the project config, then the environment.
func Load() (*Config, error) {
	return LoadFrom(GlobalConfigPath(), ProjectConfigPath())
}

// LoadFrom merges the given files in order; later files win and missing
// files are skipped. Environment variables override every file.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can resolve it
// during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.adapter", d.Store.Adapter)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.versioning", d.Store.Versioning)
	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("store.anon_key", d.Store.AnonKey)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("user.email", d.User.Email)
	v.SetDefault("user.name", d.User.Name)
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, Dir, "config.yaml")
}

// ProjectConfigPath returns the path to the project config file
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, Dir, "config.yaml")
}

// WriteDefault writes a commented default configuration to path.
// An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := `# Aether configuration
store:
  adapter: fs        # "fs", "sqlite" or "memory"
  path: .
  versioning: true   # git audit trail (fs only)
  # url: https://example.supabase.co
  # anon_key: public-anon-key

server:
  addr: 127.0.0.1:8080

# user:
#   email: you@example.com
#   name: You
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
