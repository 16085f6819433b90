// Package config loads the daemon configuration.
//
// Values come from three layers, later ones winning: struct defaults
// (go-defaults tags), a TOML file, then environment variables and command
// line flags through viper.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	defaults "github.com/mcuadros/go-defaults"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. CRYPTONET_ENGINE_KIND.
const EnvPrefix = "CRYPTONET"

// Engine kinds.
const (
	EngineNative = "native"
	EngineWASM   = "wasm"
)

// Registry kinds.
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Config represents the complete daemon configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Engine   EngineConfig   `toml:"engine"`
	Registry RegistryConfig `toml:"registry"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `toml:"addr" default:":8080"`
	// BodyLimitMB caps request bodies; images arrive inline (default: 16)
	BodyLimitMB int `toml:"body_limit_mb" default:"16"`
	// ReadTimeoutSec is the request read timeout (default: 30)
	ReadTimeoutSec int `toml:"read_timeout_sec" default:"30"`
	// CORSOrigins is a comma-separated origin list (default: "*")
	CORSOrigins string `toml:"cors_origins" default:"*"`
}

// EngineConfig selects and configures the matching engine
type EngineConfig struct {
	// Kind is "native" (cgo build with the privid tag) or "wasm" (default: "wasm")
	Kind string `toml:"kind" default:"wasm"`
	// WASMPath is the engine module, required for kind "wasm"
	WASMPath string `toml:"wasm_path"`
	// Settings is the session settings JSON
	Settings string `toml:"settings"`
	// SettingsFile is read instead of Settings when set
	SettingsFile string `toml:"settings_file"`
	// Resolution is the canonical image size (default: 1000)
	Resolution int `toml:"resolution" default:"1000"`
	// InitOnStart opens the session when the daemon starts (default: true)
	InitOnStart bool `toml:"init_on_start" default:"true"`
}

// RegistryConfig selects where enrollment records are kept
type RegistryConfig struct {
	// Kind is "memory" or "redis" (default: "memory")
	Kind string `toml:"kind" default:"memory"`
	// RedisAddr is the Redis address (default: "localhost:6379")
	RedisAddr string `toml:"redis_addr" default:"localhost:6379"`
	// RedisDB is the Redis database number
	RedisDB int `toml:"redis_db"`
	// KeyPrefix is prepended to every Redis key (default: "cryptonet:registry:")
	KeyPrefix string `toml:"key_prefix" default:"cryptonet:registry:"`
	// TTLHours expires records after this many hours (0 = never)
	TTLHours int `toml:"ttl_hours"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: "info")
	Level string `toml:"level" default:"info"`
	// File is the log file; empty logs to stderr
	File string `toml:"file"`
	// RotationHours starts a new file this often (default: 24)
	RotationHours int `toml:"rotation_hours" default:"24"`
	// MaxAgeDays removes rotated files older than this (default: 7)
	MaxAgeDays int `toml:"max_age_days" default:"7"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults. Keys the file sets but Config does not know are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// NewViper returns a viper instance that reads CRYPTONET_* environment
// variables, e.g. CRYPTONET_ENGINE_WASM_PATH for engine.wasm_path.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (environment or bound flags)
// onto cfg.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	strs := map[string]*string{
		"server.addr":          &cfg.Server.Addr,
		"server.cors_origins":  &cfg.Server.CORSOrigins,
		"engine.kind":          &cfg.Engine.Kind,
		"engine.wasm_path":     &cfg.Engine.WASMPath,
		"engine.settings":      &cfg.Engine.Settings,
		"engine.settings_file": &cfg.Engine.SettingsFile,
		"registry.kind":        &cfg.Registry.Kind,
		"registry.redis_addr":  &cfg.Registry.RedisAddr,
		"registry.key_prefix":  &cfg.Registry.KeyPrefix,
		"logging.level":        &cfg.Logging.Level,
		"logging.file":         &cfg.Logging.File,
	}
	for key, p := range strs {
		if v.IsSet(key) {
			*p = v.GetString(key)
		}
	}

	ints := map[string]*int{
		"server.body_limit_mb":    &cfg.Server.BodyLimitMB,
		"server.read_timeout_sec": &cfg.Server.ReadTimeoutSec,
		"engine.resolution":       &cfg.Engine.Resolution,
		"registry.redis_db":       &cfg.Registry.RedisDB,
		"registry.ttl_hours":      &cfg.Registry.TTLHours,
		"logging.rotation_hours":  &cfg.Logging.RotationHours,
		"logging.max_age_days":    &cfg.Logging.MaxAgeDays,
	}
	for key, p := range ints {
		if v.IsSet(key) {
			*p = v.GetInt(key)
		}
	}

	if v.IsSet("engine.init_on_start") {
		cfg.Engine.InitOnStart = v.GetBool("engine.init_on_start")
	}
}

// Validate checks the configuration for missing or conflicting values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.BodyLimitMB <= 0 {
		errs = append(errs, errors.New("server.body_limit_mb must be positive"))
	}

	switch c.Engine.Kind {
	case EngineNative:
	case EngineWASM:
		if c.Engine.WASMPath == "" {
			errs = append(errs, errors.New("engine.wasm_path is required for the wasm engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.kind must be %q or %q, got %q", EngineNative, EngineWASM, c.Engine.Kind))
	}
	if c.Engine.Settings != "" && c.Engine.SettingsFile != "" {
		errs = append(errs, errors.New("engine.settings and engine.settings_file are mutually exclusive"))
	}
	if c.Engine.Resolution <= 0 {
		errs = append(errs, errors.New("engine.resolution must be positive"))
	}

	switch c.Registry.Kind {
	case RegistryMemory:
	case RegistryRedis:
		if c.Registry.RedisAddr == "" {
			errs = append(errs, errors.New("registry.redis_addr is required for the redis registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.kind must be %q or %q, got %q", RegistryMemory, RegistryRedis, c.Registry.Kind))
	}
	if c.Registry.TTLHours < 0 {
		errs = append(errs, errors.New("registry.ttl_hours must not be negative"))
	}

	return errors.Join(errs...)
}

// SettingsJSON returns the session settings, reading SettingsFile if set.
// With neither set it returns "{}".
func (c *EngineConfig) SettingsJSON() (string, error) {
	settings := c.Settings
	if c.SettingsFile != "" {
		data, err := os.ReadFile(c.SettingsFile)
		if err != nil {
			return "", fmt.Errorf("failed to read engine settings: %w", err)
		}
		settings = string(data)
	}
	if strings.TrimSpace(settings) == "" {
		return "{}", nil
	}
	if !json.Valid([]byte(settings)) {
		return "", errors.New("engine settings are not valid JSON")
	}
	return settings, nil
}

// ReadTimeout returns the request read timeout.
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// TTL returns the record expiry, zero for none.
func (c *RegistryConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// RotationTime returns the log rotation interval.
func (c *LoggingConfig) RotationTime() time.Duration {
	return time.Duration(c.RotationHours) * time.Hour
}

// MaxAge returns how long rotated logs are kept.
func (c *LoggingConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}
