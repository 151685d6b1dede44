package adminserver

import "time"

// Config holds admin server configuration settings, pared down to the
// read-only surface this core exposes.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	EnableCORS     bool
	AllowedOrigins []string
	EnableLogging  bool
}

// DefaultConfig returns sensible defaults for a local admin/inspection
// server.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 1 * 1024 * 1024,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  true,
	}
}
