// Package config holds gateway configuration resolved with the precedence
// defaults < file < env < flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig holds configuration for the gateway server.
type GatewayConfig struct {
	Port              int           `yaml:"port"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	Token             string        `yaml:"token"`
	DefaultInstances  []int         `yaml:"default_instances"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	LogLevel          string        `yaml:"log_level"`
	RedisAddr         string        `yaml:"redis_addr"`
	ConfigFile        string        `yaml:"-"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SessionTimeout    time.Duration `yaml:"session_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	DrainTimeout      time.Duration `yaml:"drain_timeout"`
}

// SetDefaults initializes c with built-in defaults.
func (c *GatewayConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 60 * time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if len(c.DefaultInstances) == 0 {
		c.DefaultInstances = []int{0}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *GatewayConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := getEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	} else if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if v := getEnv("GATEWAY_TOKEN", ""); v != "" {
		c.Token = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := getEnv("DEFAULT_INSTANCES", ""); v != "" {
		c.DefaultInstances = splitInts(v)
	}
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := getEnv("SESSION_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTimeout = d
		}
	}
	if v := getEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
}

// BindFlagsFromCurrent binds command line flags using the current config
// values as defaults.
func (c *GatewayConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "gateway config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the gateway")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the value of --port")
	flag.StringVar(&c.Token, "token", c.Token, "shared secret clients must present at identify; leave empty for open guest access")
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for mirroring gateway state")
	flag.Func("default-instances", "comma separated instance ids granted to authenticated sessions", func(v string) error {
		c.DefaultInstances = splitInts(v)
		return nil
	})
	flag.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	flag.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "heartbeat interval advertised to clients")
	flag.DurationVar(&c.SessionTimeout, "session-timeout", c.SessionTimeout, "heartbeat staleness cutoff before a session is evicted")
	flag.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "cadence of the stale-session sweep")
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for connected sessions on shutdown")
}

// LoadFile populates the config from a YAML file.
func (c *GatewayConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func splitInts(v string) []int {
	var out []int
	for _, p := range splitComma(v) {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
