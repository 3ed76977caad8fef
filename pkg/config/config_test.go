package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, []string{DefaultRegion}, cfg.Server.Regions)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
	assert.Equal(t, 0, cfg.Client.RetryAttempts)
	assert.Equal(t, []string{"localhost:8080"}, cfg.Client.Nodes)
	assert.Equal(t, BackendEmbedded, cfg.Workload.Backend)
	assert.Equal(t, StoreFixed, cfg.Workload.Store)
	assert.False(t, cfg.Workload.Mutable())
	assert.True(t, cfg.Workload.ClearCache)
	assert.Empty(t, cfg.Workload.MetricsAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CACHEASIDE_SERVER_PORT", "9090")
	t.Setenv("CACHEASIDE_SERVER_READ_TIMEOUT", "3s")
	t.Setenv("CACHEASIDE_CLIENT_NODES", "cache1:8080,cache2:8080")
	t.Setenv("CACHEASIDE_WORKLOAD_BACKEND", "cachemir")
	t.Setenv("CACHEASIDE_WORKLOAD_STORE", "memory")
	t.Setenv("CACHEASIDE_WORKLOAD_FIND_INTERVAL", "250ms")
	t.Setenv("CACHEASIDE_WORKLOAD_CLEAR_CACHE", "false")
	t.Setenv("CACHEASIDE_WORKLOAD_METRICS_ADDR", "localhost:9100")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"cache1:8080", "cache2:8080"}, cfg.Client.Nodes)
	assert.Equal(t, BackendCachemir, cfg.Workload.Backend)
	assert.True(t, cfg.Workload.Mutable())
	assert.Equal(t, 250*time.Millisecond, cfg.Workload.FindInterval)
	assert.False(t, cfg.Workload.ClearCache)
	assert.Equal(t, "localhost:9100", cfg.Workload.MetricsAddr)
}

func TestBindFlagsOverridesEnvironment(t *testing.T) {
	t.Setenv("CACHEASIDE_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", DefaultServerPort, "")
	require.NoError(t, flags.Parse([]string{"--port", "7070"}))

	v := New()
	require.NoError(t, BindFlags(v, flags, map[string]string{"server.port": "port"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)

	err = BindFlags(v, flags, map[string]string{"server.host": "missing"})
	assert.True(t, cacheerr.IsConfiguration(err))
}

func TestServerConfigValidate(t *testing.T) {
	cfg := DefaultServerConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())

	cases := map[string]func(*ServerConfig){
		"port out of range": func(c *ServerConfig) { c.Port = 70000 },
		"no regions":        func(c *ServerConfig) { c.Regions = nil },
		"empty region":      func(c *ServerConfig) { c.Regions = []string{""} },
		"no max conns":      func(c *ServerConfig) { c.MaxConns = 0 },
		"no read timeout":   func(c *ServerConfig) { c.ReadTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultServerConfig()
			mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, cacheerr.IsConfiguration(err))
		})
	}
}

func TestClientConfigValidate(t *testing.T) {
	require.NoError(t, DefaultClientConfig().Validate())

	cases := map[string]func(*ClientConfig){
		"no nodes":         func(c *ClientConfig) { c.Nodes = nil },
		"bad node":         func(c *ClientConfig) { c.Nodes = []string{"no-port"} },
		"negative retries": func(c *ClientConfig) { c.RetryAttempts = -1 },
		"no virtual nodes": func(c *ClientConfig) { c.VirtualNodes = 0 },
		"no breaker":       func(c *ClientConfig) { c.BreakerFailures = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultClientConfig()
			mutate(c)
			assert.True(t, cacheerr.IsConfiguration(c.Validate()))
		})
	}
}

func TestConfigValidateCrossSection(t *testing.T) {
	cfg := Default()
	cfg.Workload.Backend = BackendRedis
	assert.True(t, cacheerr.IsConfiguration(cfg.Validate()))

	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.Workload.EntryTTL = time.Minute
	assert.True(t, cacheerr.IsConfiguration(cfg.Validate()))
	cfg.Workload.EntryTTL = 0

	cfg.Workload.FindInterval = -1
	assert.NoError(t, cfg.Validate(), "a negative interval disables its timer")

	cfg.Workload.Store = StoreSQLite
	cfg.Workload.SQLitePath = ""
	assert.True(t, cacheerr.IsConfiguration(cfg.Validate()))

	cfg.Workload.Store = "postgres"
	assert.True(t, cacheerr.IsConfiguration(cfg.Validate()))
}
