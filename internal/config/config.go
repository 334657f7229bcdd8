package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/asyncstate/internal/errors"
)

const (
	// ConfigBaseName is the configuration file name without extension.
	ConfigBaseName = "asyncstate"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultBackend is the default todo store backend.
	DefaultBackend = "memory"
)

// Extensions lists the recognized config file extensions in lookup order.
var Extensions = []string{".json", ".toml", ".yaml", ".yml"}

// Config represents the complete asyncstate configuration.
type Config struct {
	// Name is the service name used in logs and metrics labels.
	Name string `json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`

	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" toml:"server" yaml:"server"`

	// Tracker contains request tracker settings.
	Tracker TrackerConfig `json:"tracker" toml:"tracker" yaml:"tracker"`

	// Optimistic contains optimistic set settings.
	Optimistic OptimisticConfig `json:"optimistic" toml:"optimistic" yaml:"optimistic"`

	// Store selects and configures the todo store.
	Store StoreConfig `json:"store" toml:"store" yaml:"store"`

	// Log contains logging settings.
	Log LogConfig `json:"log" toml:"log" yaml:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" toml:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing" toml:"tracing" yaml:"tracing"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `json:"host,omitempty" toml:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" toml:"port,omitempty" yaml:"port,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
}

// TrackerConfig contains request tracker settings.
type TrackerConfig struct {
	// StaleTime is how long a successful result satisfies Fetch (e.g., "5s").
	// Empty or "0s" means every Fetch calls the producer.
	StaleTime string `json:"staleTime,omitempty" toml:"staleTime,omitempty" yaml:"staleTime,omitempty"`
}

// OptimisticConfig contains optimistic set settings.
type OptimisticConfig struct {
	TempIDPrefix string `json:"tempIdPrefix,omitempty" toml:"tempIdPrefix,omitempty" yaml:"tempIdPrefix,omitempty"`
}

// StoreConfig selects the todo store backend.
type StoreConfig struct {
	// Backend is one of "memory", "bolt" or "s3".
	Backend string `json:"backend,omitempty" toml:"backend,omitempty" yaml:"backend,omitempty"`

	Memory MemoryConfig `json:"memory" toml:"memory" yaml:"memory"`
	Bolt   BoltConfig   `json:"bolt" toml:"bolt" yaml:"bolt"`
	S3     S3Config     `json:"s3" toml:"s3" yaml:"s3"`
}

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// Latency is added to every call (e.g., "300ms").
	Latency string `json:"latency,omitempty" toml:"latency,omitempty" yaml:"latency,omitempty"`

	// FailureRate is the probability in [0, 1] that a call fails.
	FailureRate float64 `json:"failureRate,omitempty" toml:"failureRate,omitempty" yaml:"failureRate,omitempty"`

	// Seed seeds the failure generator. Zero picks a time-based seed.
	Seed int64 `json:"seed,omitempty" toml:"seed,omitempty" yaml:"seed,omitempty"`
}

// BoltConfig configures the bbolt store.
type BoltConfig struct {
	Path   string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`
	Bucket string `json:"bucket,omitempty" toml:"bucket,omitempty" yaml:"bucket,omitempty"`
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket          string `json:"bucket,omitempty" toml:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" toml:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" toml:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" toml:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty" toml:"accessKeyId,omitempty" yaml:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" toml:"secretAccessKey,omitempty" yaml:"secretAccessKey,omitempty"`
	UsePathStyle    bool   `json:"usePathStyle,omitempty" toml:"usePathStyle,omitempty" yaml:"usePathStyle,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" toml:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" toml:"format,omitempty" yaml:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty" yaml:"namespace,omitempty"`
	Path      string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// TracerName names the tracer of HTTP request spans.
	TracerName string `json:"tracerName,omitempty" toml:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Name: "asyncstate",
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: "10s",
		},
		Tracker: TrackerConfig{
			StaleTime: "0s",
		},
		Optimistic: OptimisticConfig{
			TempIDPrefix: "tmp-",
		},
		Store: StoreConfig{
			Backend: DefaultBackend,
			Memory: MemoryConfig{
				Latency: "300ms",
			},
			Bolt: BoltConfig{
				Path:   "todos.db",
				Bucket: "todos",
			},
			S3: S3Config{
				Prefix: "todos/",
				Region: "us-east-1",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "asyncstate",
			Path:      "/metrics",
		},
		Tracing: TracingConfig{
			TracerName: "asyncstate/server",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// asyncstate.json, asyncstate.toml, asyncstate.yaml and asyncstate.yml,
// in that order.
func Load(dir string) (*Config, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, ConfigBaseName+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New(errors.CodeConfigNotFound).
		WithDetail("No " + ConfigBaseName + ".{json,toml,yaml} found in " + dir).
		WithSuggestion("Run 'asyncstate serve' without --config to use defaults")
}

// LoadFile reads configuration from the specified file path. The format
// is chosen by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No config file at " + path)
		}
		return nil, errors.New(errors.CodeConfigParse).Wrap(err)
	}

	cfg := New()
	if err := Decode(filepath.Ext(path), data, cfg); err != nil {
		return nil, err
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Decode parses data in the format named by ext into cfg.
func Decode(ext string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return errors.New(errors.CodeConfigFormat).
			WithDetailf("Unsupported config extension %q", ext).
			WithSuggestion("Use .json, .toml, .yaml or .yml")
	}
	if err != nil {
		return errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse config: " + err.Error()).
			Wrap(err)
	}
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Name == "" {
		c.Name = d.Name
	}

	// Server
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Tracker.StaleTime == "" {
		c.Tracker.StaleTime = d.Tracker.StaleTime
	}
	if c.Optimistic.TempIDPrefix == "" {
		c.Optimistic.TempIDPrefix = d.Optimistic.TempIDPrefix
	}

	// Store
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.Bolt.Path == "" {
		c.Store.Bolt.Path = d.Store.Bolt.Path
	}
	if c.Store.Bolt.Bucket == "" {
		c.Store.Bolt.Bucket = d.Store.Bolt.Bucket
	}
	if c.Store.S3.Region == "" {
		c.Store.S3.Region = d.Store.S3.Region
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	// Metrics
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}

	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("Port must be between 0 and 65535")
	}
	for name, value := range map[string]string{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"tracker.staleTime":      c.Tracker.StaleTime,
		"store.memory.latency":   c.Store.Memory.Latency,
	} {
		if _, err := parseDuration(value); err != nil {
			return invalid(name + " is not a valid duration: " + err.Error())
		}
	}
	if d, _ := parseDuration(c.Tracker.StaleTime); d < 0 {
		return invalid("tracker.staleTime must not be negative")
	}
	if r := c.Store.Memory.FailureRate; r < 0 || r > 1 {
		return invalid("store.memory.failureRate must be between 0 and 1")
	}

	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.Bolt.Path == "" {
			return invalid("store.bolt.path is required for the bolt backend")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return invalid("store.s3.bucket is required for the s3 backend")
		}
	default:
		return errors.New(errors.CodeUnknownBackend).
			WithDetailf("Unknown store backend %q", c.Store.Backend).
			WithSuggestion("Use memory, bolt or s3")
	}

	if _, err := c.Log.level(); err != nil {
		return invalid(err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json")
	}
	return nil
}

func invalid(detail string) error {
	return errors.New(errors.CodeConfigInvalid).WithDetail(detail)
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ShutdownTimeout returns the parsed graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// StaleTime returns the parsed tracker stale time.
func (c *Config) StaleTime() time.Duration {
	d, _ := parseDuration(c.Tracker.StaleTime)
	return d
}

// LatencyDuration returns the parsed in-memory store latency.
func (m MemoryConfig) LatencyDuration() time.Duration {
	d, _ := parseDuration(m.Latency)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// NewLogger builds a slog.Logger writing to w in the configured format
// and level.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
