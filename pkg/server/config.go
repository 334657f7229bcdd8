package server

import (
	"net/http"
	"time"
)

// Config holds configuration for the todo API server.
type Config struct {
	// Address is the host:port to listen on.
	// Default: "localhost:8080".
	Address string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout is the http.Server read header timeout.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a WebSocket
	// message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between WebSocket pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 4KB.
	MaxMessageSize int64

	// MetricsPath serves the client's Prometheus collector, when it has one.
	// Empty disables the endpoint.
	MetricsPath string

	// TracerName names the tracer of HTTP request spans.
	// Default: TracerName.
	TracerName string

	// CheckOrigin validates WebSocket origins.
	// Default: same-origin check of gorilla/websocket.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           "localhost:8080",
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    4 << 10,
		MetricsPath:       "/metrics",
		TracerName:        TracerName,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = d.HeartbeatInterval
	}
	if out.TracerName == "" {
		out.TracerName = d.TracerName
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	return &out
}
