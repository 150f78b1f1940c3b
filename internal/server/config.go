// Package server provides configuration helpers that define runtime defaults,
// capacity limits, and timeouts for the Tempest chat server.
package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the wire protocol and capacity limits.
const (
	DefaultHost = "localhost"
	DefaultPort = 1991

	defaultMaxClients    = 100
	defaultMaxRooms      = 50
	defaultMaxHistory    = 100
	defaultHistoryReplay = 10
	defaultMaxLineLength = 500
	defaultSendBuffer    = 256

	defaultRateLimitMessages = 20
	defaultRateLimitWindow   = time.Minute

	defaultIdleTimeout   = 5 * time.Minute
	defaultMaxLifetime   = time.Hour
	defaultSweepInterval = 15 * time.Second
	defaultStatsInterval = time.Minute
	defaultWriteTimeout  = 10 * time.Second
)

// RateLimitConfig defines the sliding window applied to chat messages.
type RateLimitConfig struct {
	Messages int
	Window   time.Duration
}

// Config holds the server configuration settings including capacity controls.
type Config struct {
	Host string
	Port int

	// HTTPAddr enables the admin API and WebSocket gateway when non-empty.
	HTTPAddr       string
	AllowedOrigins []string

	MaxClients    int
	MaxRooms      int
	MaxHistory    int
	HistoryReplay int
	MaxLineLength int
	SendBuffer    int

	RateLimit RateLimitConfig

	IdleTimeout   time.Duration
	MaxLifetime   time.Duration
	SweepInterval time.Duration
	StatsInterval time.Duration
	WriteTimeout  time.Duration
}

// Addr returns the TCP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func defaultConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxClients:    defaultMaxClients,
		MaxRooms:      defaultMaxRooms,
		MaxHistory:    defaultMaxHistory,
		HistoryReplay: defaultHistoryReplay,
		MaxLineLength: defaultMaxLineLength,
		SendBuffer:    defaultSendBuffer,
		RateLimit: RateLimitConfig{
			Messages: defaultRateLimitMessages,
			Window:   defaultRateLimitWindow,
		},
		IdleTimeout:   defaultIdleTimeout,
		MaxLifetime:   defaultMaxLifetime,
		SweepInterval: defaultSweepInterval,
		StatsInterval: defaultStatsInterval,
		WriteTimeout:  defaultWriteTimeout,
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = def.Host
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = def.Port
	}
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)

	positive := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	positive(&cfg.MaxClients, def.MaxClients)
	positive(&cfg.MaxRooms, def.MaxRooms)
	positive(&cfg.MaxHistory, def.MaxHistory)
	positive(&cfg.HistoryReplay, def.HistoryReplay)
	positive(&cfg.MaxLineLength, def.MaxLineLength)
	positive(&cfg.SendBuffer, def.SendBuffer)
	positive(&cfg.RateLimit.Messages, def.RateLimit.Messages)

	duration := func(v *time.Duration, fallback time.Duration) {
		if *v <= 0 {
			*v = fallback
		}
	}
	duration(&cfg.RateLimit.Window, def.RateLimit.Window)
	duration(&cfg.IdleTimeout, def.IdleTimeout)
	duration(&cfg.MaxLifetime, def.MaxLifetime)
	duration(&cfg.SweepInterval, def.SweepInterval)
	duration(&cfg.StatsInterval, def.StatsInterval)
	duration(&cfg.WriteTimeout, def.WriteTimeout)

	if cfg.HistoryReplay > cfg.MaxHistory {
		cfg.HistoryReplay = cfg.MaxHistory
	}
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if host := os.Getenv("TEMPEST_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("TEMPEST_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}
	cfg.HTTPAddr = os.Getenv("TEMPEST_HTTP_ADDR")
	if origins := os.Getenv("TEMPEST_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	intVars := map[string]*int{
		"TEMPEST_MAX_CLIENTS":         &cfg.MaxClients,
		"TEMPEST_MAX_ROOMS":           &cfg.MaxRooms,
		"TEMPEST_MAX_HISTORY":         &cfg.MaxHistory,
		"TEMPEST_HISTORY_REPLAY":      &cfg.HistoryReplay,
		"TEMPEST_MAX_LINE_LENGTH":     &cfg.MaxLineLength,
		"TEMPEST_SEND_BUFFER":         &cfg.SendBuffer,
		"TEMPEST_RATE_LIMIT_MESSAGES": &cfg.RateLimit.Messages,
	}
	for key, dst := range intVars {
		if value := os.Getenv(key); value != "" {
			*dst = parseIntValue(value, *dst)
		}
	}

	secondVars := map[string]*time.Duration{
		"TEMPEST_RATE_LIMIT_WINDOW": &cfg.RateLimit.Window,
		"TEMPEST_IDLE_TIMEOUT":      &cfg.IdleTimeout,
		"TEMPEST_MAX_LIFETIME":      &cfg.MaxLifetime,
		"TEMPEST_SWEEP_INTERVAL":    &cfg.SweepInterval,
		"TEMPEST_STATS_INTERVAL":    &cfg.StatsInterval,
		"TEMPEST_WRITE_TIMEOUT":     &cfg.WriteTimeout,
	}
	for key, dst := range secondVars {
		if value := os.Getenv(key); value != "" {
			*dst = parseSeconds(value, *dst)
		}
	}

	return &cfg
}

// ApplyArgs applies the positional command line arguments "[host] [port]".
// A single numeric argument is taken as the port.
func (c *Config) ApplyArgs(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		if port, err := strconv.Atoi(args[0]); err == nil {
			return c.setPort(port, args[0])
		}
		c.Host = args[0]
		return nil
	case 2:
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: must be a number", args[1])
		}
		c.Host = args[0]
		return c.setPort(port, args[1])
	default:
		return fmt.Errorf("expected at most 2 arguments, got %d", len(args))
	}
}

func (c *Config) setPort(port int, raw string) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q: out of range", raw)
	}
	c.Port = port
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
