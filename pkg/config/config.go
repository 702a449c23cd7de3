// Package config loads winch settings from TOML files and the environment.
//
// Settings are layered: defaults, then the first config file found, then
// environment variables. Command-line flags are applied on top by the CLI.
//
// Config files are looked up in order:
//   - <project>/winch.toml
//   - $XDG_CONFIG_HOME/winch/config.toml (default ~/.config/winch/config.toml)
//
// Example:
//
//	max_rollbacks = 8
//	build_timeout = "20m"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//
//	[history]
//	backend = "mongo"
//	mongo_uri = "mongodb://localhost:27017"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/winch/pkg/errors"
)

const (
	appName     = "winch"
	projectFile = "winch.toml"
	userFile    = "config.toml"
)

// Environment variables read by [Load].
const (
	EnvRedisURL = "WINCH_REDIS_URL"
	EnvMongoURI = "WINCH_MONGO_URI"
)

// Backend names for [CacheConfig] and [HistoryConfig].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Defaults.
const (
	DefaultMaxRollbacks    = 5
	DefaultRegistryRetries = 3
	DefaultBuildTimeout    = 10 * time.Minute
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCargo           = "cargo"
	DefaultDatabase        = "winch"
)

// Config is the complete winch configuration.
type Config struct {
	MaxRollbacks    int      `toml:"max_rollbacks"`
	RegistryRetries int      `toml:"registry_retries"`
	BuildTimeout    Duration `toml:"build_timeout"`
	Cargo           string   `toml:"cargo"`
	RegistryURL     string   `toml:"registry_url"` // crates.io-compatible API root; empty for crates.io

	Cache   CacheConfig   `toml:"cache"`
	History HistoryConfig `toml:"history"`

	// Source is the file the config was read from, empty for defaults only.
	Source string `toml:"-"`
}

// CacheConfig selects where registry responses are cached.
type CacheConfig struct {
	Backend  string   `toml:"backend"` // file, redis or none
	TTL      Duration `toml:"ttl"`
	Dir      string   `toml:"dir"` // file backend; default $XDG_CACHE_HOME/winch
	RedisURL string   `toml:"redis_url"`
}

// HistoryConfig selects where session reports are kept.
type HistoryConfig struct {
	Backend  string `toml:"backend"` // file, mongo or none
	Dir      string `toml:"dir"`     // file backend; default $XDG_STATE_HOME/winch/reports
	MongoURI string `toml:"mongo_uri"`
	Database string `toml:"database"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "10m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxRollbacks:    DefaultMaxRollbacks,
		RegistryRetries: DefaultRegistryRetries,
		BuildTimeout:    Duration{DefaultBuildTimeout},
		Cargo:           DefaultCargo,
		Cache: CacheConfig{
			Backend: BackendFile,
			TTL:     Duration{DefaultCacheTTL},
		},
		History: HistoryConfig{
			Backend:  BackendFile,
			Database: DefaultDatabase,
		},
	}
}

// Load reads the configuration for the project in projectDir.
// Missing files are not an error; malformed ones are.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	for _, path := range Candidates(projectDir) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
		break
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a single config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.merge(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Candidates lists the config files Load consults, in priority order.
func Candidates(projectDir string) []string {
	var out []string
	if projectDir != "" {
		out = append(out, filepath.Join(projectDir, projectFile))
	}
	if dir, err := Dir(); err == nil {
		out = append(out, filepath.Join(dir, userFile))
	}
	return out
}

// Dir returns the user config directory ($XDG_CONFIG_HOME/winch or ~/.config/winch).
func Dir() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// CacheDir returns the default file cache directory ($XDG_CACHE_HOME/winch or ~/.cache/winch).
func CacheDir() (string, error) {
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

func (c *Config) merge(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undecoded[0].String())
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Cache.RedisURL = v
		if c.Cache.Backend == BackendFile {
			c.Cache.Backend = BackendRedis
		}
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.History.MongoURI = v
		if c.History.Backend == BackendFile {
			c.History.Backend = BackendMongo
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.MaxRollbacks < 1:
		return invalid("max_rollbacks must be at least 1, got %d", c.MaxRollbacks)
	case c.RegistryRetries < 1:
		return invalid("registry_retries must be at least 1, got %d", c.RegistryRetries)
	case c.BuildTimeout.Duration <= 0:
		return invalid("build_timeout must be positive, got %s", c.BuildTimeout.Duration)
	case c.Cargo == "":
		return invalid("cargo must name a binary")
	case c.Cache.TTL.Duration < 0:
		return invalid("cache.ttl must not be negative")
	}

	switch c.Cache.Backend {
	case BackendFile, BackendNone:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return invalid("cache.backend = %q needs cache.redis_url or %s", BackendRedis, EnvRedisURL)
		}
	default:
		return invalid("unknown cache.backend %q", c.Cache.Backend)
	}

	switch c.History.Backend {
	case BackendFile, BackendNone:
	case BackendMongo:
		if c.History.MongoURI == "" {
			return invalid("history.backend = %q needs history.mongo_uri or %s", BackendMongo, EnvMongoURI)
		}
		if c.History.Database == "" {
			return invalid("history.database must not be empty")
		}
	default:
		return invalid("unknown history.backend %q", c.History.Backend)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, "%s", fmt.Sprintf(format, args...))
}
