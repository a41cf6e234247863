// Package config loads server settings from a JSON file with sanitized
// defaults.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// RateLimitConfig defines the per-identity sliding window throttle
type RateLimitConfig struct {
	WindowSeconds int `json:"window_seconds"`
	MaxRequests   int `json:"max_requests"`
}

// Config holds the server runtime settings
type Config struct {
	ListenAddr       string          `json:"listen_addr"`
	DatabasePath     string          `json:"database_path"`
	KeyPath          string          `json:"key_path"`
	APIPort          int             `json:"api_port"`
	MaxMessageLength int             `json:"max_message_length"`
	HistoryLimit     int             `json:"history_limit"`
	SessionTTLHours  int             `json:"session_ttl_hours"`
	RateLimit        RateLimitConfig `json:"rate_limit"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ListenAddr:       ":7420",
		DatabasePath:     "./data/cipherchat.db",
		KeyPath:          "./keys/server.pem",
		APIPort:          7421,
		MaxMessageLength: 4096,
		HistoryLimit:     50,
		SessionTTLHours:  24,
		RateLimit: RateLimitConfig{
			WindowSeconds: 5,
			MaxRequests:   10,
		},
	}
}

// Load reads the JSON config at path, falling back to defaults for missing
// fields. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg.sanitize(), nil
}

func (c *Config) sanitize() *Config {
	d := Default()

	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.KeyPath == "" {
		c.KeyPath = d.KeyPath
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = d.MaxMessageLength
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = d.SessionTTLHours
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = d.RateLimit.WindowSeconds
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = d.RateLimit.MaxRequests
	}

	return c
}

// SessionTTL returns the session lifetime as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// RateLimitWindow returns the sliding window as a duration
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
