// Package server implements the cachemir cache server with TCP networking and command processing.
//
// The server hosts a fixed set of named regions on the in-memory region
// engine and answers region commands over the binary protocol. The schema
// metadata region is always hosted, so remote clients can register their wire
// schema before touching data regions.
//
// Architecture:
//   - TCP server with concurrent connection handling
//   - Binary protocol for client-server communication
//   - Region engine for data storage
//   - Connection limit and per-command timeouts
//   - Graceful shutdown support
//
// Example usage:
//
//	srv := server.New(config.DefaultServerConfig(), logger)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// The server handles these commands:
//   - Entry operations: GET, PUT, REMOVE
//   - Region operations: SIZE, CLEAR, REGIONS
//   - Utility: PING
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cachemir/cacheaside/pkg/cache"
	"github.com/cachemir/cacheaside/pkg/config"
	"github.com/cachemir/cacheaside/pkg/protocol"
	"github.com/cachemir/cacheaside/pkg/schema"
)

// Server represents a cachemir cache server instance.
// It manages TCP connections, processes commands, and owns the region engine.
//
// Example:
//
//	srv := server.New(cfg, logger)
//	go func() {
//		if err := srv.Start(); err != nil {
//			logger.Error("server stopped", zap.Error(err))
//		}
//	}()
//
//	// Later, to stop the server
//	srv.Stop()
type Server struct {
	config   *config.ServerConfig
	cache    *cache.Cache // The underlying region engine
	logger   *zap.Logger
	handlers map[protocol.CommandType]func(*protocol.Command) *protocol.Response
	slots    chan struct{} // One token per allowed concurrent connection

	listener net.Listener // TCP listener for incoming connections
	conns    map[net.Conn]struct{}
	mu       sync.Mutex // Protects listener, conns and stopped
	wg       sync.WaitGroup
	stopped  bool
}

// New creates a Server hosting cfg.Regions plus the schema metadata region.
// The server is not listening until Listen or Start is called.
func New(cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	regions := append([]string{schema.MetadataRegionName}, cfg.Regions...)
	s := &Server{
		config: cfg,
		cache:  cache.New(cfg.CleanupInterval, regions...),
		logger: logger,
		slots:  make(chan struct{}, cfg.MaxConns),
		conns:  make(map[net.Conn]struct{}),
	}
	s.handlers = map[protocol.CommandType]func(*protocol.Command) *protocol.Response{
		protocol.CmdGet:     s.handleGet,
		protocol.CmdPut:     s.handlePut,
		protocol.CmdRemove:  s.handleRemove,
		protocol.CmdSize:    s.handleSize,
		protocol.CmdClear:   s.handleClear,
		protocol.CmdRegions: s.handleRegions,
		protocol.CmdPing:    s.handlePing,
		protocol.CmdTTL:     s.handleTTL,
	}
	return s
}

// Listen binds the configured address. Port 0 picks a free port; Addr
// reports the one chosen.
func (s *Server) Listen() error {
	addr := s.config.Address()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("cache server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Strings("regions", s.cache.Regions()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens and serves until Stop is called.
//
// The server will:
//  1. Create a TCP listener on the configured address
//  2. Accept incoming connections in a loop
//  3. Spawn a goroutine for each connection, up to MaxConns at a time
//  4. Continue until Stop() is called
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections on the listener opened by Listen.
// It returns nil once Stop has been called.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isStopped() {
				return nil
			}
			s.logger.Warn("failed to accept connection", zap.Error(err))
			continue
		}

		select {
		case s.slots <- struct{}{}:
		default:
			s.logger.Warn("connection limit reached, rejecting",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Int("max_conns", s.config.MaxConns))
			s.closeConn(conn)
			continue
		}

		if !s.track(conn) {
			<-s.slots
			s.closeConn(conn)
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// Stop closes the listener and every open connection, waits for connection
// goroutines to finish and stops the region engine's cleanup.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		s.closeConn(conn)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("cache server stopped", zap.Any("stats", s.cache.Stats()))
	s.cache.Close()
	return err
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.closeConn(conn)
}

func (s *Server) closeConn(conn net.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("error closing connection", zap.Error(err))
	}
}

// handleConnection processes commands from a single client connection until
// the client disconnects, a deadline passes or the server stops.
func (s *Server) handleConnection(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			s.logger.Debug("error setting read deadline", zap.String("remote", remote), zap.Error(err))
			return
		}

		cmd, err := protocol.ReadCommand(conn)
		if err != nil {
			s.logger.Debug("connection closed", zap.String("remote", remote), zap.Error(err))
			return
		}

		resp := s.executeCommand(cmd)

		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			s.logger.Debug("error setting write deadline", zap.String("remote", remote), zap.Error(err))
			return
		}
		if err := protocol.WriteResponse(conn, resp); err != nil {
			s.logger.Warn("failed to write response", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

// executeCommand dispatches cmd to its handler. Unknown commands return an
// error response.
func (s *Server) executeCommand(cmd *protocol.Command) *protocol.Response {
	if handler, ok := s.handlers[cmd.Type]; ok {
		return handler(cmd)
	}

	return &protocol.Response{
		Type:  protocol.RespError,
		Error: fmt.Sprintf("unknown command: %d", cmd.Type),
	}
}

// region resolves the addressed region or builds the UNKNOWN_REGION response.
func (s *Server) region(cmd *protocol.Command) (*cache.Region, *protocol.Response) {
	r, ok := s.cache.Region(cmd.Region)
	if !ok {
		return nil, &protocol.Response{
			Type:  protocol.RespUnknownRegion,
			Error: fmt.Sprintf("unknown region: %s", cmd.Region),
		}
	}
	return r, nil
}

func (s *Server) handlePing(_ *protocol.Command) *protocol.Response {
	return &protocol.Response{Type: protocol.RespOK}
}

// handleGet returns the stored bytes, or a nil response if the key doesn't exist.
func (s *Server) handleGet(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}

	value, exists := r.Get(cmd.Key)
	if !exists {
		return &protocol.Response{Type: protocol.RespNil}
	}
	data, ok := value.([]byte)
	if !ok {
		return &protocol.Response{Type: protocol.RespError, Error: "stored value is not bytes"}
	}
	return &protocol.Response{Type: protocol.RespBytes, Data: data}
}

// handlePut stores the first argument under the key, using the command TTL.
func (s *Server) handlePut(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}
	if len(cmd.Args) == 0 {
		return &protocol.Response{Type: protocol.RespError, Error: "PUT requires a value"}
	}

	r.Set(cmd.Key, []byte(cmd.Args[0]), cmd.TTL)
	return &protocol.Response{Type: protocol.RespOK}
}

// handleRemove returns 1 if the key was removed, 0 if it didn't exist.
func (s *Server) handleRemove(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}

	var removed int64
	if r.Del(cmd.Key) {
		removed = 1
	}
	return &protocol.Response{Type: protocol.RespInt, Data: removed}
}

func (s *Server) handleSize(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}
	return &protocol.Response{Type: protocol.RespInt, Data: int64(r.Len())}
}

func (s *Server) handleClear(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}
	return &protocol.Response{Type: protocol.RespInt, Data: int64(r.Clear())}
}

func (s *Server) handleRegions(_ *protocol.Command) *protocol.Response {
	return &protocol.Response{Type: protocol.RespArray, Data: s.cache.Regions()}
}

// handleTTL reports the remaining lifetime of a key in whole seconds, rounded
// up, or -1 for a persistent entry and -2 for an absent one.
func (s *Server) handleTTL(cmd *protocol.Command) *protocol.Response {
	r, resp := s.region(cmd)
	if resp != nil {
		return resp
	}

	ttl := r.TTL(cmd.Key)
	if ttl > 0 {
		ttl += time.Second - 1
	}
	return &protocol.Response{Type: protocol.RespInt, Data: int64(ttl / time.Second)}
}
