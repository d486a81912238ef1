package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds all exilepearl configuration.
// Values are layered: Default(), then the TOML file, then EXILEPEARL_* env vars.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Pearl    PearlConfig    `toml:"pearl"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" env:"EXILEPEARL_BIND"`
	Port int    `toml:"port" env:"EXILEPEARL_PORT"`
}

type DatabaseConfig struct {
	Path string `toml:"path" env:"EXILEPEARL_DB"` // empty: store.DefaultDBPath()
}

// PearlConfig holds the gameplay values read by the engine.
type PearlConfig struct {
	HealthStart   int           `toml:"health_start" env:"EXILEPEARL_HEALTH_START"`
	HealthDecay   int           `toml:"health_decay" env:"EXILEPEARL_HEALTH_DECAY"`
	DecayInterval time.Duration `toml:"decay_interval" env:"EXILEPEARL_DECAY_INTERVAL"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"EXILEPEARL_LOG_LEVEL"`   // trace, debug, info, warn, error, disabled
	Format string `toml:"format" env:"EXILEPEARL_LOG_FORMAT"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Pearl: PearlConfig{
			HealthStart:   10,
			HealthDecay:   1,
			DecayInterval: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty or the file does not exist) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Pearl.HealthStart <= 0 {
		return fmt.Errorf("invalid config: pearl.health_start must be positive, got %d", c.Pearl.HealthStart)
	}
	if c.Pearl.HealthDecay < 0 {
		return fmt.Errorf("invalid config: pearl.health_decay must not be negative, got %d", c.Pearl.HealthDecay)
	}
	if c.Pearl.DecayInterval <= 0 {
		return fmt.Errorf("invalid config: pearl.decay_interval must be positive, got %s", c.Pearl.DecayInterval)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// PearlHealthStart implements engine.Settings.
func (p PearlConfig) PearlHealthStart() int { return p.HealthStart }

// PearlHealthDecayAmount implements engine.Settings.
func (p PearlConfig) PearlHealthDecayAmount() int { return p.HealthDecay }
