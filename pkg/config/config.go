// Package config provides configuration management for the cache server, the
// cluster client and the BasqueName workload.
//
// The package supports configuration through multiple sources with the following precedence:
//  1. Command-line flags bound with BindFlags (highest priority)
//  2. Environment variables
//  3. Default values (lowest priority)
//
// Server Configuration:
//   - Port and host binding settings
//   - Hosted regions
//   - Connection limits and timeouts
//
// Client Configuration:
//   - Node discovery and connection settings
//   - Connection pooling parameters
//   - Retry policy and circuit breaker
//   - Consistent hashing parameters
//
// Workload Configuration:
//   - Backend and store selection
//   - Timer intervals
//
// Example usage:
//
//	v := config.New()
//	cfg, err := config.Load(v)
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv := server.New(&cfg.Server, logger)
//
// Environment variables are prefixed with "CACHEASIDE_", use uppercase names and
// replace dots with underscores. For example, the server port can be set with
// CACHEASIDE_SERVER_PORT=8080 and the cluster nodes with
// CACHEASIDE_CLIENT_NODES=cache1:8080,cache2:8080.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "CACHEASIDE"

// Default configuration constants
const (
	DefaultServerPort      = 8080
	DefaultMaxConnections  = 1000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultCleanupInterval = time.Minute
	DefaultMaxConnsPerNode = 10
	DefaultConnTimeout     = 5 * time.Second
	DefaultRetryAttempts   = 0
	DefaultVirtualNodes    = 150
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultRegion          = "basque-names"
)

// Backend names accepted by WorkloadConfig.Backend.
const (
	BackendEmbedded = "embedded"
	BackendCachemir = "cachemir"
	BackendRedis    = "redis"
)

// Store names accepted by WorkloadConfig.Store.
const (
	StoreFixed  = "fixed"
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

var validate = validator.New()

// Config is the root of every configuration section.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Workload WorkloadConfig `mapstructure:"workload"`
}

// LogConfig selects the zap logger built by internal/logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// ServerConfig holds all configuration options for a cache server instance.
// It includes network settings, hosted regions and resource limits.
//
// Example:
//
//	cfg := &ServerConfig{
//		Host:     "0.0.0.0",
//		Port:     8080,
//		Regions:  []string{"basque-names"},
//		MaxConns: 1000,
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Regions         []string      `mapstructure:"regions" validate:"min=1,dive,required"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"` // 0 picks a free port
	MaxConns        int           `mapstructure:"max_conns" validate:"min=1"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
}

// ClientConfig holds all configuration options for a cluster client.
// It includes node discovery, connection pooling, retry and breaker settings.
//
// Example:
//
//	cfg := config.DefaultClientConfig()
//	cfg.Nodes = []string{"server1:8080", "server2:8080"}
//	c, err := client.NewWithConfig(cfg)
type ClientConfig struct {
	Nodes           []string      `mapstructure:"nodes" validate:"min=1,dive,hostname_port"`
	MaxConnsPerNode int           `mapstructure:"max_conns_per_node" validate:"min=1"`
	ConnTimeout     time.Duration `mapstructure:"conn_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RetryAttempts   int           `mapstructure:"retry_attempts" validate:"min=0"`
	VirtualNodes    int           `mapstructure:"virtual_nodes" validate:"min=1"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"min=1"` // consecutive failures that open the breaker
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`   // how long an open breaker rejects calls
}

// RedisConfig points the redis backend at a server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// WorkloadConfig selects the backend and store of the BasqueName workload and
// the period of each of its timers. A zero interval selects the default for
// the chosen backend and store, a negative one disables the timer.
type WorkloadConfig struct {
	Backend        string        `mapstructure:"backend" validate:"oneof=embedded cachemir redis"`
	Store          string        `mapstructure:"store" validate:"oneof=fixed memory sqlite"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	Region         string        `mapstructure:"region" validate:"required"`
	Capacity       int           `mapstructure:"capacity" validate:"min=0"` // bounded embedded regions when > 0
	EntryTTL       time.Duration `mapstructure:"entry_ttl" validate:"gte=0"`
	FindInterval   time.Duration `mapstructure:"find_interval"`
	CreateInterval time.Duration `mapstructure:"create_interval"`
	RemoveInterval time.Duration `mapstructure:"remove_interval"`
	SizeInterval   time.Duration `mapstructure:"size_interval"`
	ClearCache     bool          `mapstructure:"clear_cache"`                                     // empty a remote region before the first operation
	MetricsAddr    string        `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"` // serve /metrics when set
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "console"},
		Server:   *DefaultServerConfig(),
		Client:   *DefaultClientConfig(),
		Redis:    RedisConfig{},
		Workload: WorkloadConfig{Backend: BackendEmbedded, Store: StoreFixed, SQLitePath: ":memory:", Region: DefaultRegion, ClearCache: true},
	}
}

// DefaultServerConfig returns a ServerConfig hosting the BasqueName region.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Regions:         []string{DefaultRegion},
		Port:            DefaultServerPort,
		MaxConns:        DefaultMaxConnections,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// DefaultClientConfig returns a ClientConfig for a single local node.
// Retries are disabled by default: the cache-aside layer never retries, so
// neither does its transport unless asked to.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Nodes:           []string{"localhost:8080"},
		MaxConnsPerNode: DefaultMaxConnsPerNode,
		ConnTimeout:     DefaultConnTimeout,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		RetryAttempts:   DefaultRetryAttempts,
		VirtualNodes:    DefaultVirtualNodes,
		BreakerFailures: DefaultBreakerFailures,
		BreakerTimeout:  DefaultBreakerTimeout,
	}
}

// New returns a viper instance reading CACHEASIDE_* environment variables,
// with every key registered through its default value.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.regions", d.Server.Regions)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_conns", d.Server.MaxConns)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.cleanup_interval", d.Server.CleanupInterval)

	v.SetDefault("client.nodes", d.Client.Nodes)
	v.SetDefault("client.max_conns_per_node", d.Client.MaxConnsPerNode)
	v.SetDefault("client.conn_timeout", d.Client.ConnTimeout)
	v.SetDefault("client.read_timeout", d.Client.ReadTimeout)
	v.SetDefault("client.write_timeout", d.Client.WriteTimeout)
	v.SetDefault("client.retry_attempts", d.Client.RetryAttempts)
	v.SetDefault("client.virtual_nodes", d.Client.VirtualNodes)
	v.SetDefault("client.breaker_failures", d.Client.BreakerFailures)
	v.SetDefault("client.breaker_timeout", d.Client.BreakerTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("workload.backend", d.Workload.Backend)
	v.SetDefault("workload.store", d.Workload.Store)
	v.SetDefault("workload.sqlite_path", d.Workload.SQLitePath)
	v.SetDefault("workload.region", d.Workload.Region)
	v.SetDefault("workload.capacity", d.Workload.Capacity)
	v.SetDefault("workload.entry_ttl", d.Workload.EntryTTL)
	v.SetDefault("workload.find_interval", d.Workload.FindInterval)
	v.SetDefault("workload.create_interval", d.Workload.CreateInterval)
	v.SetDefault("workload.remove_interval", d.Workload.RemoveInterval)
	v.SetDefault("workload.size_interval", d.Workload.SizeInterval)
	v.SetDefault("workload.clear_cache", d.Workload.ClearCache)
	v.SetDefault("workload.metrics_addr", d.Workload.MetricsAddr)

	return v
}

// BindFlags binds each named flag to a configuration key, so an explicitly set
// flag wins over the environment. The map goes from key to flag name.
//
// Example:
//
//	config.BindFlags(v, cmd.Flags(), map[string]string{
//		"server.port": "port",
//		"server.host": "host",
//	})
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return cacheerr.Configuration("unknown flag %q for key %s", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return cacheerr.WrapConfiguration(err, "bind flag %q", name)
		}
	}
	return nil
}

// Load decodes v into a Config and validates it.
// Every failure is a ConfigurationError.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, cacheerr.WrapConfiguration(err, "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section. The redis address is only required when the
// workload runs against the redis backend, which also refuses an entry TTL.
// A sqlite path is only required for the sqlite store.
func (c *Config) Validate() error {
	if err := structError("log", validate.Struct(&c.Log)); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Client.Validate(); err != nil {
		return err
	}
	if err := structError("redis", validate.Struct(&c.Redis)); err != nil {
		return err
	}
	if err := c.Workload.Validate(); err != nil {
		return err
	}
	if c.Workload.Backend == BackendRedis && c.Redis.Addr == "" {
		return cacheerr.Configuration("redis: addr is required for the %s backend", BackendRedis)
	}
	if c.Workload.Backend == BackendRedis && c.Workload.EntryTTL != 0 {
		return cacheerr.Configuration("workload: entry_ttl is not supported by the %s backend", BackendRedis)
	}
	return nil
}

// Address returns the full address string for the server to bind to.
//
// Example:
//
//	cfg := &ServerConfig{Host: "0.0.0.0", Port: 8080}
//	addr := cfg.Address() // Returns "0.0.0.0:8080"
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the ServerConfig contains valid values.
//
// Validation rules:
//   - Host must be set
//   - At least one region, none empty
//   - Port must be between 0 and 65535
//   - MaxConns must be positive
//   - Timeouts must be positive
//
// Returns:
//   - nil if configuration is valid
//   - ConfigurationError describing the first validation failure found
func (c *ServerConfig) Validate() error {
	return structError("server", validate.Struct(c))
}

// Validate checks if the ClientConfig contains valid values.
//
// Validation rules:
//   - At least one node, each in "host:port" form
//   - MaxConnsPerNode, VirtualNodes and BreakerFailures must be positive
//   - All timeout values must be positive
//   - RetryAttempts must be non-negative
//
// Returns:
//   - nil if configuration is valid
//   - ConfigurationError describing the first validation failure found
func (c *ClientConfig) Validate() error {
	return structError("client", validate.Struct(c))
}

// Validate checks the WorkloadConfig.
func (c *WorkloadConfig) Validate() error {
	if err := structError("workload", validate.Struct(c)); err != nil {
		return err
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		return cacheerr.Configuration("workload: sqlite_path is required for the %s store", StoreSQLite)
	}
	return nil
}

// Mutable reports whether the configured store accepts writes.
func (c *WorkloadConfig) Mutable() bool {
	return c.Store != StoreFixed
}

func structError(section string, err error) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fe := validationErrors[0]
		return cacheerr.WrapConfiguration(err, "%s: %s failed on %s (value %v)",
			section, strings.ToLower(fe.Field()), fe.Tag(), fe.Value())
	}
	return cacheerr.WrapConfiguration(err, "%s: invalid configuration", section)
}
