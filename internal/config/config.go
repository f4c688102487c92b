package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jinzhu/configor"
	log "github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override, e.g. LIGHTNING_REST_SERVER_PORT
const EnvPrefix = "LIGHTNING_REST"

type Configuration struct {
	Server    ServerConfiguration    `yaml:"server"`
	Lightning LightningConfiguration `yaml:"lightning"`
	Database  DatabaseConfiguration  `yaml:"database"`
	RateLimit RateLimitConfiguration `yaml:"rate_limit"`
	Log       LogConfiguration       `yaml:"log"`
}

type ServerConfiguration struct {
	Host                string `yaml:"host" default:"127.0.0.1"`
	Port                int    `yaml:"port" default:"7000"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" default:"15"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" default:"60"`
}

type LightningConfiguration struct {
	RPCPath        string `yaml:"rpc_path"`
	Network        string `yaml:"network" default:"testnet"`
	TimeoutSeconds int    `yaml:"timeout_seconds" default:"30"`
	Mock           bool   `yaml:"mock"`
}

type DatabaseConfiguration struct {
	// Path of the SQLite call journal. Empty disables the journal.
	Path string `yaml:"path"`
	// RetentionDays bounds the journal's age. Zero means the default of 30,
	// a negative value keeps every row.
	RetentionDays int `yaml:"retention_days" default:"30"`
}

type RateLimitConfiguration struct {
	// RequestsPerSecond per client address. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst of zero means the default of 20
	Burst int `yaml:"burst" default:"20"`
}

type LogConfiguration struct {
	Level string `yaml:"level" default:"info"`
}

// Load reads defaults, then any of the given files that exist, then
// LIGHTNING_REST_* environment overrides
func Load(files ...string) (*Configuration, error) {
	cfg := &Configuration{}
	loader := configor.New(&configor.Config{ENVPrefix: EnvPrefix})
	if err := loader.Load(cfg, files...); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded values are usable
func (c *Configuration) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if !c.Lightning.Mock && c.Lightning.RPCPath == "" {
		return errors.New("lightning rpc_path is required unless mock mode is enabled")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid requests_per_second %v", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting, got %d", c.RateLimit.Burst)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Configuration) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Configuration) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Configuration) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Configuration) RPCTimeout() time.Duration {
	return time.Duration(c.Lightning.TimeoutSeconds) * time.Second
}

// Retention is how long journal entries are kept. A negative retention_days
// returns zero, which keeps them forever.
func (c *Configuration) Retention() time.Duration {
	if c.Database.RetentionDays < 0 {
		return 0
	}
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}
