// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportHTTP  = "http"
	TransportMQTT  = "mqtt"
	TransportRedis = "redis"
)

// Buffer modes.
const (
	BufferDisk   = "disk"
	BufferMemory = "memory"
)

const (
	// DefaultDiskCapacity is the disk buffer size in pages.
	DefaultDiskCapacity = 1024
	// DefaultMemoryCapacity is the memory buffer size in lines.
	DefaultMemoryCapacity = 4096
)

// Config is the agent configuration.
type Config struct {
	// DeviceID identifies this agent to the collector. It is the
	// pub/sub client id.
	DeviceID string `yaml:"device_id"`

	// Session is the initial session id stamped on batches.
	Session string `yaml:"session"`

	// Server is the collector URL (http) or broker address (mqtt,
	// redis).
	Server    string `yaml:"server"`
	Transport string `yaml:"transport"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`

	Buffer   BufferConfig   `yaml:"buffer"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Reporter ReporterConfig `yaml:"reporter"`
	Queues   QueuesConfig   `yaml:"queues"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// BufferConfig selects and sizes the store-and-forward buffer.
type BufferConfig struct {
	// Mode is "disk" or "memory".
	Mode string `yaml:"mode"`

	// Path is the disk buffer's data file. The index and lock files
	// live next to it.
	Path string `yaml:"path"`

	// Capacity is in pages for disk and lines for memory. Zero picks
	// the mode's default.
	Capacity int `yaml:"capacity"`

	// Sync fsyncs the data file and index after every write.
	Sync bool `yaml:"sync"`
}

// DeliveryConfig tunes the retrying sender and the transports.
type DeliveryConfig struct {
	Retries        int           `yaml:"retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Keepalive      time.Duration `yaml:"keepalive"`
	Encoding       string        `yaml:"encoding"`
	TopicPrefix    string        `yaml:"topic_prefix"`
}

// ReporterConfig tunes the reporter loop.
type ReporterConfig struct {
	// DrainWait bounds each outbound queue read during aggregation.
	DrainWait time.Duration `yaml:"drain_wait"`
	// PollWait bounds each pub/sub poll.
	PollWait time.Duration `yaml:"poll_wait"`
	// MaxBatchRecords caps records per batch; zero is unlimited.
	MaxBatchRecords int `yaml:"max_batch_records"`
}

// QueuesConfig sizes the outbound and inbound queues.
type QueuesConfig struct {
	Outbound int `yaml:"outbound"`
	Inbound  int `yaml:"inbound"`
}

// IngestConfig configures the local record socket. An empty Socket
// disables it.
type IngestConfig struct {
	Socket string `yaml:"socket"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used for any key the file leaves
// unset.
func Default() *Config {
	return &Config{
		Session:   "0",
		Transport: TransportHTTP,
		Buffer: BufferConfig{
			Mode: BufferDisk,
			Path: "/var/lib/edgerelay/buffer.dat",
		},
		Delivery: DeliveryConfig{
			Retries:        3,
			InitialBackoff: time.Second,
			RequestTimeout: 30 * time.Second,
			PublishTimeout: 15 * time.Second,
			Keepalive:      60 * time.Second,
			Encoding:       "none",
		},
		Reporter: ReporterConfig{
			DrainWait: 400 * time.Millisecond,
			PollWait:  time.Second,
		},
		Queues: QueuesConfig{
			Outbound: 1024,
			Inbound:  256,
		},
		Ingest: IngestConfig{
			Socket: "/run/edgerelay/ingest.sock",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by EDGERELAY_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("EDGERELAY_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("EDGERELAY_CONFIG environment variable not set; " +
			"set it to the path of your edgerelay.yaml or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, expands ${VAR} references in
// string values, then applies EDGERELAY_* environment overrides. The
// result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in the fields
// that commonly carry secrets or host-specific paths.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.DeviceID,
		&c.Session,
		&c.Server,
		&c.Username,
		&c.Password,
		&c.Buffer.Path,
		&c.Delivery.TopicPrefix,
		&c.Ingest.Socket,
		&c.Metrics.Listen,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// applyEnvironment overrides file values from EDGERELAY_* variables.
func (c *Config) applyEnvironment() error {
	for name, field := range map[string]*string{
		"EDGERELAY_SERVER":      &c.Server,
		"EDGERELAY_TRANSPORT":   &c.Transport,
		"EDGERELAY_BUFFER_PATH": &c.Buffer.Path,
		"EDGERELAY_LOG_LEVEL":   &c.Log.Level,
		"EDGERELAY_DEVICE_ID":   &c.DeviceID,
	} {
		if value, ok := os.LookupEnv(name); ok {
			*field = value
		}
	}
	if value, ok := os.LookupEnv("EDGERELAY_BUFFER_CAPACITY"); ok {
		capacity, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("EDGERELAY_BUFFER_CAPACITY: %w", err)
		}
		c.Buffer.Capacity = capacity
	}
	return nil
}

// BufferCapacity returns the configured capacity, or the default for
// the buffer mode.
func (c *Config) BufferCapacity() int {
	if c.Buffer.Capacity > 0 {
		return c.Buffer.Capacity
	}
	if c.Buffer.Mode == BufferMemory {
		return DefaultMemoryCapacity
	}
	return DefaultDiskCapacity
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server == "" {
		errs = append(errs, errors.New("server is required"))
	}
	if !slices.Contains([]string{TransportHTTP, TransportMQTT, TransportRedis}, c.Transport) {
		errs = append(errs, fmt.Errorf("transport must be one of http, mqtt, redis: got %q", c.Transport))
	}
	if c.Transport == TransportMQTT && c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required for the mqtt transport"))
	}
	if c.Session == "" {
		errs = append(errs, errors.New("session is required"))
	}

	switch c.Buffer.Mode {
	case BufferDisk:
		if c.Buffer.Path == "" {
			errs = append(errs, errors.New("buffer.path is required for the disk buffer"))
		}
		if c.Buffer.Capacity > 0xFFFF {
			errs = append(errs, fmt.Errorf("buffer.capacity %d exceeds the disk buffer's 65535 pages", c.Buffer.Capacity))
		}
	case BufferMemory:
	default:
		errs = append(errs, fmt.Errorf("buffer.mode must be disk or memory: got %q", c.Buffer.Mode))
	}
	if c.Buffer.Capacity < 0 {
		errs = append(errs, errors.New("buffer.capacity must not be negative"))
	}

	if c.Delivery.Retries < 1 {
		errs = append(errs, errors.New("delivery.retries must be at least 1"))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"delivery.initial_backoff", c.Delivery.InitialBackoff},
		{"delivery.request_timeout", c.Delivery.RequestTimeout},
		{"delivery.publish_timeout", c.Delivery.PublishTimeout},
		{"reporter.drain_wait", c.Reporter.DrainWait},
		{"reporter.poll_wait", c.Reporter.PollWait},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if !slices.Contains([]string{"none", "gzip", "zstd", "lz4"}, c.Delivery.Encoding) {
		errs = append(errs, fmt.Errorf("delivery.encoding must be one of none, gzip, zstd, lz4: got %q", c.Delivery.Encoding))
	}
	if c.Reporter.MaxBatchRecords < 0 {
		errs = append(errs, errors.New("reporter.max_batch_records must not be negative"))
	}
	if c.Queues.Outbound < 1 || c.Queues.Inbound < 1 {
		errs = append(errs, errors.New("queues.outbound and queues.inbound must be at least 1"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error: got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
