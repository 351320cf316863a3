package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

// Environment variables read by ApplyEnv
const (
	EnvAddress           = "SERVER_ADDRESS"
	EnvStorePath         = "KV_STORE_PATH"
	EnvPersistence       = "KV_PERSISTENCE"
	EnvSnapshotPolicy    = "KV_SNAPSHOT_POLICY"
	EnvProtocol          = "KV_PROTOCOL"
	EnvLogLevel          = "KV_LOG_LEVEL"
	EnvLogFormat         = "KV_LOG_FORMAT"
	EnvReadBufferSize    = "KV_READ_BUFFER_SIZE"
	EnvMaxFrameSize      = "KV_MAX_FRAME_SIZE"
	EnvIdleTimeout       = "KV_IDLE_TIMEOUT"
	EnvShutdownTimeout   = "KV_SHUTDOWN_TIMEOUT"
	EnvAdminAddress      = "KV_ADMIN_ADDRESS"
	EnvGRPCHealthAddress = "KV_GRPC_HEALTH_ADDRESS"
	EnvJaegerEndpoint    = "KV_JAEGER_ENDPOINT"
	EnvConfigFile        = "KV_CONFIG"
)

// Config is the complete server configuration
type Config struct {
	Address           string        `yaml:"address"`
	StorePath         string        `yaml:"store_path"`
	Persistence       bool          `yaml:"persistence"`
	SnapshotPolicy    string        `yaml:"snapshot_policy"`
	Protocol          string        `yaml:"protocol"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	MaxFrameSize      int           `yaml:"max_frame_size"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AdminAddress      string        `yaml:"admin_address"`
	GRPCHealthAddress string        `yaml:"grpc_health_address"`
	JaegerEndpoint    string        `yaml:"jaeger_endpoint"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Address:         "127.0.0.1:7878",
		StorePath:       "kv_store.db",
		Persistence:     true,
		SnapshotPolicy:  string(storage.PolicyFail),
		Protocol:        protocol.ProtocolText,
		LogLevel:        string(shared.INFO),
		LogFormat:       "console",
		ReadBufferSize:  protocol.DefaultReadBufferSize,
		MaxFrameSize:    protocol.DefaultMaxFrameSize,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the process environment, in that order.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults. Unknown fields are rejected.
// An empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvAddress:           &c.Address,
		EnvStorePath:         &c.StorePath,
		EnvSnapshotPolicy:    &c.SnapshotPolicy,
		EnvProtocol:          &c.Protocol,
		EnvLogLevel:          &c.LogLevel,
		EnvLogFormat:         &c.LogFormat,
		EnvAdminAddress:      &c.AdminAddress,
		EnvGRPCHealthAddress: &c.GRPCHealthAddress,
		EnvJaegerEndpoint:    &c.JaegerEndpoint,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvPersistence); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPersistence, err)
		}
		c.Persistence = b
	}

	ints := map[string]*int{
		EnvReadBufferSize: &c.ReadBufferSize,
		EnvMaxFrameSize:   &c.MaxFrameSize,
	}
	for name, field := range ints {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = n
		}
	}

	durations := map[string]*time.Duration{
		EnvIdleTimeout:     &c.IdleTimeout,
		EnvShutdownTimeout: &c.ShutdownTimeout,
	}
	for name, field := range durations {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = d
		}
	}
	return nil
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.New("address must not be empty")
	}
	if c.Persistence && c.StorePath == "" {
		return errors.New("store path must not be empty when persistence is enabled")
	}
	if _, err := storage.ParseCorruptPolicy(c.SnapshotPolicy); err != nil {
		return err
	}
	if _, err := protocol.NewCodec(c.Protocol); err != nil {
		return err
	}
	if _, err := shared.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want \"console\" or \"json\")", c.LogFormat)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer size must be positive, got %d", c.ReadBufferSize)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive, got %d", c.MaxFrameSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
