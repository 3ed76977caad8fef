// Package client provides the client SDK for connecting to cachemir cache servers.
//
// The client implements automatic node selection using consistent hashing, connection pooling
// for efficient resource usage, and optional retry logic for handling transient failures.
// Every operation addresses a named region and carries a context that bounds it.
//
// Key Features:
//   - Consistent hashing of region/key pairs for node selection
//   - Connection pooling per server node
//   - Configurable retry attempts (none by default)
//   - Region-wide SIZE and CLEAR fanned out to every node
//   - Thread-safe operations
//
// Basic Usage:
//
//	c, err := client.New([]string{"server1:8080", "server2:8080"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Put(ctx, "basque-names", "0", payload, 0)
//	value, found, err := c.Get(ctx, "basque-names", "0")
//	size, err := c.Size(ctx, "basque-names")
//
// Advanced Configuration:
//
//	cfg := config.DefaultClientConfig()
//	cfg.Nodes = []string{"node1:8080", "node2:8080"}
//	cfg.MaxConnsPerNode = 20
//	cfg.RetryAttempts = 2
//	c, err := client.NewWithConfig(cfg, client.WithLogger(logger))
//
// Transport failures are reported as NetworkErrors (see pkg/cacheerr). A
// region that a server does not host is reported as ErrUnknownRegion.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cachemir/cacheaside/pkg/cacheerr"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/protocol"
)

// ErrUnknownRegion is returned when a server does not host the addressed region.
var ErrUnknownRegion = errors.New("unknown region")

// ErrServer is returned when a server answers with an error response.
var ErrServer = errors.New("server error")

// Client provides a high-level interface to a cachemir cluster.
// It manages connections to multiple server nodes and automatically selects
// the appropriate node for each region/key pair using consistent hashing.
//
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	config *config.ClientConfig       // Client configuration
	ring   *ring                      // Consistent hash ring for node selection
	pools  map[string]*ConnectionPool // Connection pools per node
	logger *zap.Logger
	mu     sync.RWMutex // Protects the pools map
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for connection housekeeping.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ConnectionPool manages a pool of connections to a single server node.
// It creates connections on demand up to the configured maximum and reuses
// returned ones.
type ConnectionPool struct {
	connections chan net.Conn // Pool of available connections
	address     string        // Server address (host:port)
	connTimeout time.Duration // Timeout for creating or waiting for a connection
	logger      *zap.Logger
	mu          sync.Mutex // Protects created and closed
	maxConns    int        // Maximum number of connections
	created     int        // Number of connections handed out or pooled
	closed      bool
}

// New creates a Client for the given nodes with default configuration.
//
// Example:
//
//	c, err := client.New([]string{"localhost:8080"})
func New(nodes []string, opts ...Option) (*Client, error) {
	cfg := config.DefaultClientConfig()
	cfg.Nodes = nodes

	return NewWithConfig(cfg, opts...)
}

// NewWithConfig creates a Client using the provided configuration.
// No connection is opened until the first operation.
//
// Returns:
//   - A new Client ready for use
//   - ConfigurationError if the configuration is invalid
func NewWithConfig(cfg *config.ClientConfig, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, cacheerr.Configuration("client: nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		ring:   newRing(cfg.VirtualNodes),
		pools:  make(map[string]*ConnectionPool),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, node := range cfg.Nodes {
		c.AddNode(node)
	}

	return c, nil
}

// AddNode dynamically adds a server node to the cluster.
// Keys owned by the new node's ring positions move to it.
func (c *Client) AddNode(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring.add(address)
	if _, exists := c.pools[address]; !exists {
		c.pools[address] = &ConnectionPool{
			address:     address,
			connections: make(chan net.Conn, c.config.MaxConnsPerNode),
			maxConns:    c.config.MaxConnsPerNode,
			connTimeout: c.config.ConnTimeout,
			logger:      c.logger,
		}
	}
}

// RemoveNode dynamically removes a server node from the cluster and closes
// its connection pool.
func (c *Client) RemoveNode(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring.remove(address)
	if pool, exists := c.pools[address]; exists {
		pool.Close()
		delete(c.pools, address)
	}
}

// Nodes returns the current cluster members in sorted order.
func (c *Client) Nodes() []string {
	return c.ring.members()
}

func (c *Client) pool(node string) (*ConnectionPool, error) {
	c.mu.RLock()
	pool, exists := c.pools[node]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no connection pool for node: %s", node)
	}
	return pool, nil
}

// executeCommand routes cmd by its region/key pair and runs it on the owning node.
func (c *Client) executeCommand(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	node := c.ring.get(cmd.RoutingKey())
	if node == "" {
		return nil, cacheerr.Network(errors.New("no available nodes"), "%s %s", cmd.Type, cmd.Region)
	}
	return c.executeOn(ctx, node, cmd)
}

// executeOn runs cmd against node with retry logic.
//
// The retry strategy:
//  1. Get a connection from the node's pool
//  2. Send the command and read the response within the configured timeouts
//     and the context deadline, whichever is earlier
//  3. Return the connection to the pool on success
//  4. Discard the connection and retry on failure
//  5. Return a NetworkError after exhausting retry attempts
func (c *Client) executeOn(ctx context.Context, node string, cmd *protocol.Command) (*protocol.Response, error) {
	pool, err := c.pool(node)
	if err != nil {
		return nil, cacheerr.Network(err, "%s %s", cmd.Type, cmd.Region)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, cacheerr.Network(err, "%s %s on %s", cmd.Type, cmd.Region, node)
		}

		resp, err := c.roundTrip(ctx, pool, cmd)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.logger.Debug("command attempt failed",
			zap.String("node", node),
			zap.Stringer("command", cmd.Type),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, cacheerr.Network(lastErr, "%s %s on %s failed after %d attempts",
		cmd.Type, cmd.Region, node, c.config.RetryAttempts+1)
}

func (c *Client) roundTrip(ctx context.Context, pool *ConnectionPool, cmd *protocol.Command) (*protocol.Response, error) {
	conn, err := pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	if err := conn.SetWriteDeadline(deadline(ctx, c.config.WriteTimeout)); err != nil {
		pool.discard(conn)
		return nil, err
	}
	if err := protocol.WriteCommand(conn, cmd); err != nil {
		pool.discard(conn)
		return nil, err
	}

	if err := conn.SetReadDeadline(deadline(ctx, c.config.ReadTimeout)); err != nil {
		pool.discard(conn)
		return nil, err
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		pool.discard(conn)
		return nil, err
	}

	pool.Put(conn)
	return resp, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// responseError converts error-carrying responses into errors.
func responseError(cmd *protocol.Command, resp *protocol.Response) error {
	switch resp.Type {
	case protocol.RespUnknownRegion:
		return fmt.Errorf("%w: %s", ErrUnknownRegion, cmd.Region)
	case protocol.RespError:
		return fmt.Errorf("%w: %s", ErrServer, resp.Error)
	default:
		return nil
	}
}

func unexpected(cmd *protocol.Command, resp *protocol.Response) error {
	return fmt.Errorf("%w: unexpected response type %d to %s", ErrServer, resp.Type, cmd.Type)
}

// Get retrieves the value stored under key in region.
//
// Example:
//
//	value, found, err := c.Get(ctx, "basque-names", "3")
//	if err != nil {
//		return err
//	}
//	if !found {
//		// miss
//	}
//
// Returns:
//   - The value and true if present
//   - nil and false if the key is absent or expired
//   - ErrUnknownRegion if the node does not host region
//   - NetworkError if the node could not be reached
func (c *Client) Get(ctx context.Context, region, key string) ([]byte, bool, error) {
	cmd := &protocol.Command{Type: protocol.CmdGet, Region: region, Key: key}

	resp, err := c.executeCommand(ctx, cmd)
	if err != nil {
		return nil, false, err
	}
	if err := responseError(cmd, resp); err != nil {
		return nil, false, err
	}

	switch resp.Type {
	case protocol.RespNil:
		return nil, false, nil
	case protocol.RespBytes:
		value, ok := resp.Data.([]byte)
		if !ok {
			return nil, false, unexpected(cmd, resp)
		}
		return value, true, nil
	default:
		return nil, false, unexpected(cmd, resp)
	}
}

// Put stores value under key in region. A zero ttl means the entry does not expire.
func (c *Client) Put(ctx context.Context, region, key string, value []byte, ttl time.Duration) error {
	cmd := &protocol.Command{
		Type:   protocol.CmdPut,
		Region: region,
		Key:    key,
		Args:   []string{string(value)},
		TTL:    ttl,
	}

	resp, err := c.executeCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if err := responseError(cmd, resp); err != nil {
		return err
	}
	if resp.Type != protocol.RespOK {
		return unexpected(cmd, resp)
	}
	return nil
}

// Remove deletes key from region. Returns true if a live entry was removed.
func (c *Client) Remove(ctx context.Context, region, key string) (bool, error) {
	cmd := &protocol.Command{Type: protocol.CmdRemove, Region: region, Key: key}

	resp, err := c.executeCommand(ctx, cmd)
	if err != nil {
		return false, err
	}
	if err := responseError(cmd, resp); err != nil {
		return false, err
	}
	n, ok := resp.Data.(int64)
	if resp.Type != protocol.RespInt || !ok {
		return false, unexpected(cmd, resp)
	}
	return n > 0, nil
}

// Size returns the number of live entries in region across the whole cluster.
// Every node is asked; the region must be hosted by all of them.
func (c *Client) Size(ctx context.Context, region string) (int64, error) {
	return c.sumAll(ctx, &protocol.Command{Type: protocol.CmdSize, Region: region})
}

// Clear drops every entry of region on every node and returns how many live
// entries were removed.
func (c *Client) Clear(ctx context.Context, region string) (int64, error) {
	return c.sumAll(ctx, &protocol.Command{Type: protocol.CmdClear, Region: region})
}

func (c *Client) sumAll(ctx context.Context, cmd *protocol.Command) (int64, error) {
	nodes := c.Nodes()
	if len(nodes) == 0 {
		return 0, cacheerr.Network(errors.New("no available nodes"), "%s %s", cmd.Type, cmd.Region)
	}

	counts := make([]int64, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, node := range nodes {
		g.Go(func() error {
			resp, err := c.executeOn(gctx, node, cmd)
			if err != nil {
				return err
			}
			if err := responseError(cmd, resp); err != nil {
				return err
			}
			n, ok := resp.Data.(int64)
			if resp.Type != protocol.RespInt || !ok {
				return unexpected(cmd, resp)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Regions returns the union of the regions hosted by the cluster's nodes.
func (c *Client) Regions(ctx context.Context) ([]string, error) {
	cmd := &protocol.Command{Type: protocol.CmdRegions}

	seen := make(map[string]bool)
	for _, node := range c.Nodes() {
		resp, err := c.executeOn(ctx, node, cmd)
		if err != nil {
			return nil, err
		}
		if err := responseError(cmd, resp); err != nil {
			return nil, err
		}
		names, ok := resp.Data.([]string)
		if resp.Type != protocol.RespArray || !ok {
			return nil, unexpected(cmd, resp)
		}
		for _, name := range names {
			seen[name] = true
		}
	}

	regions := make([]string, 0, len(seen))
	for name := range seen {
		regions = append(regions, name)
	}
	sort.Strings(regions)
	return regions, nil
}

// Ping tests connectivity to every node of the cluster.
//
// Example:
//
//	if err := c.Ping(ctx); err != nil {
//		log.Printf("cluster is unreachable: %v", err)
//	}
func (c *Client) Ping(ctx context.Context) error {
	cmd := &protocol.Command{Type: protocol.CmdPing}

	for _, node := range c.Nodes() {
		resp, err := c.executeOn(ctx, node, cmd)
		if err != nil {
			return err
		}
		if err := responseError(cmd, resp); err != nil {
			return err
		}
	}
	return nil
}

// Do sends an arbitrary command, routed like any other, and returns the raw
// response. It backs the debugging CLI.
func (c *Client) Do(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	return c.executeCommand(ctx, cmd)
}

// Close gracefully shuts down the client by closing all connection pools.
// After calling Close, the client should not be used for further operations.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for address, pool := range c.pools {
		pool.Close()
		delete(c.pools, address)
	}

	return nil
}

// Get obtains a connection from the pool, creating a new one if necessary.
// If the pool is at capacity it waits for a returned connection, up to the
// connection timeout or the context deadline.
func (cp *ConnectionPool) Get(ctx context.Context) (net.Conn, error) {
	select {
	case conn, ok := <-cp.connections:
		if !ok {
			return nil, fmt.Errorf("connection pool for %s is closed", cp.address)
		}
		return conn, nil
	default:
	}

	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil, fmt.Errorf("connection pool for %s is closed", cp.address)
	}
	if cp.created < cp.maxConns {
		cp.created++
		cp.mu.Unlock()

		dialer := &net.Dialer{Timeout: cp.connTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cp.address)
		if err != nil {
			cp.release()
			return nil, err
		}
		return conn, nil
	}
	cp.mu.Unlock()

	timer := time.NewTimer(cp.connTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-cp.connections:
		if !ok {
			return nil, fmt.Errorf("connection pool for %s is closed", cp.address)
		}
		return conn, nil
	case <-timer.C:
		return nil, fmt.Errorf("connection pool timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a connection to the pool for reuse.
// If the pool is full or closed, the connection is closed instead.
func (cp *ConnectionPool) Put(conn net.Conn) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if !cp.closed {
		select {
		case cp.connections <- conn:
			return
		default:
		}
	}
	cp.closeConn(conn)
	cp.created--
}

// discard closes a broken connection and frees its slot.
func (cp *ConnectionPool) discard(conn net.Conn) {
	cp.closeConn(conn)
	cp.release()
}

func (cp *ConnectionPool) release() {
	cp.mu.Lock()
	cp.created--
	cp.mu.Unlock()
}

func (cp *ConnectionPool) closeConn(conn net.Conn) {
	if err := conn.Close(); err != nil {
		cp.logger.Debug("error closing connection", zap.String("node", cp.address), zap.Error(err))
	}
}

// Close shuts down the connection pool by closing all pooled connections.
// This is called when a node is removed or the client is shut down.
func (cp *ConnectionPool) Close() {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.closed {
		return
	}
	cp.closed = true
	close(cp.connections)
	for conn := range cp.connections {
		cp.closeConn(conn)
	}
}
