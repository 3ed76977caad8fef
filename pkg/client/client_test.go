package client

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/cacheaside/internal/server"
	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/protocol"
	"github.com/cachemir/cacheaside/pkg/schema"
)

func startServer(t *testing.T, regions ...string) string {
	t.Helper()

	cfg := config.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Regions = regions

	srv := server.New(cfg, nil)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Stop() })
	return srv.Addr().String()
}

func newClient(t *testing.T, nodes ...string) *Client {
	t.Helper()

	cfg := config.DefaultClientConfig()
	cfg.Nodes = nodes
	cfg.ConnTimeout = time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second

	c, err := NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRegionOperations(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t, "basque-names"))

	require.NoError(t, c.Ping(ctx))

	_, found, err := c.Get(ctx, "basque-names", "0")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "basque-names", "0", []byte{0x08, 0x00}, 0))
	value, found, err := c.Get(ctx, "basque-names", "0")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{0x08, 0x00}, value)

	size, err := c.Size(ctx, "basque-names")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	removed, err := c.Remove(ctx, "basque-names", "0")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Remove(ctx, "basque-names", "0")
	require.NoError(t, err)
	assert.False(t, removed)

	regions, err := c.Regions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{schema.MetadataRegionName, "basque-names"}, regions)
}

func TestClientUnknownRegion(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t, "basque-names"))

	_, err := c.Size(ctx, "other")
	assert.True(t, errors.Is(err, ErrUnknownRegion))

	_, _, err = c.Get(ctx, "other", "1")
	assert.True(t, errors.Is(err, ErrUnknownRegion))
	assert.False(t, cacheerr.IsNetwork(err))
}

func TestClientSizeSumsAcrossNodes(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t, "basque-names"), startServer(t, "basque-names"))

	const entries = 40
	for i := 0; i < entries; i++ {
		require.NoError(t, c.Put(ctx, "basque-names", strconv.Itoa(i), []byte("v"), 0))
	}

	size, err := c.Size(ctx, "basque-names")
	require.NoError(t, err)
	assert.Equal(t, int64(entries), size)

	cleared, err := c.Clear(ctx, "basque-names")
	require.NoError(t, err)
	assert.Equal(t, int64(entries), cleared)
}

func TestClientUnreachableNodeIsNetworkError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := newClient(t, addr)

	err = c.Put(context.Background(), "basque-names", "1", []byte("x"), 0)
	require.Error(t, err)
	assert.True(t, cacheerr.IsNetwork(err))
}

func TestClientHonoursCancelledContext(t *testing.T) {
	c := newClient(t, startServer(t, "basque-names"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Get(ctx, "basque-names", "1")
	assert.True(t, cacheerr.IsNetwork(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientDo(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, startServer(t, "basque-names"))

	cmd, err := protocol.ParseTextCommand("PUT basque-names 3 Andoni")
	require.NoError(t, err)
	resp, err := c.Do(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, protocol.RespOK, resp.Type)

	value, found, err := c.Get(ctx, "basque-names", "3")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Andoni", string(value))
}

func TestNewWithConfigRejectsInvalid(t *testing.T) {
	_, err := NewWithConfig(nil)
	assert.True(t, cacheerr.IsConfiguration(err))

	_, err = New(nil)
	assert.True(t, cacheerr.IsConfiguration(err))
}

func TestAddRemoveNode(t *testing.T) {
	c := newClient(t, "node1:8080")

	c.AddNode("node2:8080")
	assert.Equal(t, []string{"node1:8080", "node2:8080"}, c.Nodes())

	c.RemoveNode("node1:8080")
	assert.Equal(t, []string{"node2:8080"}, c.Nodes())
}
