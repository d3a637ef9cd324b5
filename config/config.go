// config/config.go
//
// Package config loads myworld settings from a YAML file, a .env file and
// MYWORLD_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Client   ClientConfig   `yaml:"client"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// PasswordHash is a bcrypt hash; empty disables authentication.
	PasswordHash string `yaml:"password_hash"`
	AllowOrigins string `yaml:"allow_origins"`
	Metrics      bool   `yaml:"metrics"`
}

type DatabaseConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type StoreConfig struct {
	MoveConcurrency int `yaml:"move_concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: "*",
			Metrics:      true,
		},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Client: ClientConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			MoveConcurrency: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path (skipped when empty or missing), then envFile (same),
// then the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		// existing environment variables win over the file
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("MYWORLD_ADDR", &c.Server.Addr)
	str("MYWORLD_PASSWORD_HASH", &c.Server.PasswordHash)
	str("MYWORLD_ALLOW_ORIGINS", &c.Server.AllowOrigins)
	str("MYWORLD_DB_DRIVER", &c.Database.Driver)
	str("MYWORLD_DATABASE_URL", &c.Database.URL)
	str("MYWORLD_URL", &c.Client.BaseURL)
	str("MYWORLD_TOKEN", &c.Client.Token)
	str("MYWORLD_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("MYWORLD_METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MYWORLD_METRICS: %w", err)
		}
		c.Server.Metrics = b
	}
	if v, ok := lookup("MYWORLD_LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MYWORLD_LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = b
	}
	if v, ok := lookup("MYWORLD_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MYWORLD_TIMEOUT: %w", err)
		}
		c.Client.Timeout = d
	}
	if v, ok := lookup("MYWORLD_MOVE_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MYWORLD_MOVE_CONCURRENCY: %w", err)
		}
		c.Store.MoveConcurrency = n
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}
	if c.Store.MoveConcurrency < 1 {
		return fmt.Errorf("store.move_concurrency must be at least 1")
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Logger builds the process logger described by c.Log.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if c.Log.Pretty {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Logger()
}

// SaveToFile writes c as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
