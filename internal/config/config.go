// Package config holds the CLI configuration types.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config stores all parameters gathered from the command line.
type Config struct {
	ServerURL string // coordinator WebSocket endpoint
	UploadURL string // coordinator HTTP base for uploads; derived when empty
	Username  string // requested display name; empty keeps the assigned one
	LogLevel  string
}

// Normalize validates ServerURL, coercing http(s) schemes to ws(s), and
// derives UploadURL from it when unset.
func (c *Config) Normalize() error {
	if c.ServerURL == "" {
		return fmt.Errorf("missing coordinator URL")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid coordinator URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported coordinator URL scheme %q", u.Scheme)
	}
	c.ServerURL = u.String()

	if c.UploadURL == "" {
		h := *u
		h.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
		h.Path = ""
		c.UploadURL = h.String()
	}
	return nil
}
