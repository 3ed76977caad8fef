package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cachemir/cacheaside/internal/server"
	"github.com/cachemir/cacheaside/pkg/client"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/protocol"
	"github.com/cachemir/cacheaside/pkg/record"
)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	srv := server.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Stop() })

	c, err := client.New([]string{srv.Addr().String()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func run(t *testing.T, c *client.Client, line string) (string, error) {
	t.Helper()
	pc, err := protocol.ParseTextCommand(line)
	require.NoError(t, err)

	var out bytes.Buffer
	err = execute(context.Background(), c, pc, &out)
	return out.String(), err
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	out, err := run(t, c, "PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", out)

	out, err = run(t, c, "GET basque-names 0")
	require.NoError(t, err)
	assert.Equal(t, "(nil)\n", out)

	out, err = run(t, c, "PUT basque-names raw hello")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)

	out, err = run(t, c, "GET basque-names raw")
	require.NoError(t, err)
	assert.Equal(t, "\"hello\"\n", out)

	require.NoError(t, c.Put(ctx, "basque-names", "0", record.Marshal(record.New(0, "Aitor")), 0))
	out, err = run(t, c, "GET basque-names 0")
	require.NoError(t, err)
	assert.Equal(t, "BasqueName{id=0, name=Aitor}\n", out)

	out, err = run(t, c, "TTL basque-names raw")
	require.NoError(t, err)
	assert.Equal(t, "(integer) -1\n", out)

	out, err = run(t, c, "SIZE basque-names")
	require.NoError(t, err)
	assert.Equal(t, "(integer) 2\n", out)

	out, err = run(t, c, "REMOVE basque-names raw")
	require.NoError(t, err)
	assert.Equal(t, "(integer) 1\n", out)

	out, err = run(t, c, "CLEAR basque-names")
	require.NoError(t, err)
	assert.Equal(t, "(integer) 1\n", out)

	out, err = run(t, c, "REGIONS")
	require.NoError(t, err)
	assert.Equal(t, "1) ___protobuf_metadata\n2) basque-names\n", out)

	_, err = run(t, c, "GET nowhere 0")
	assert.True(t, errors.Is(err, client.ErrUnknownRegion), "got %v", err)
}
