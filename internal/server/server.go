package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tinyhttpd/internal/request"
	"tinyhttpd/internal/response"
)

const (
	DefaultAddr     = "127.0.0.1:4221"
	DefaultMaxConns = 256
)

// Handler function type that processes HTTP requests
type Handler func(w *response.Writer, req *request.Request)

// Config holds the listener settings. Zero values pick the defaults.
type Config struct {
	Addr string
	// MaxConns caps the connections served at once. When every slot is
	// taken the accept loop waits, leaving new clients in the listen backlog.
	MaxConns int
	// ReadTimeout is the deadline for a whole connection. Zero disables it.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// Server represents an HTTP server
type Server struct {
	listener net.Listener
	handler  Handler
	logger   *slog.Logger
	timeout  time.Duration
	slots    chan struct{}
	done     chan struct{}
	conns    sync.WaitGroup
	closed   atomic.Bool

	mu     sync.Mutex
	active map[net.Conn]struct{}
}

// Serve creates a new server and starts listening on cfg.Addr
func Serve(cfg Config, handler Handler) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	server := &Server{
		listener: listener,
		handler:  handler,
		logger:   cfg.Logger,
		timeout:  cfg.ReadTimeout,
		slots:    make(chan struct{}, cfg.MaxConns),
		done:     make(chan struct{}),
		active:   make(map[net.Conn]struct{}),
	}

	// Start listening in a background goroutine
	server.conns.Add(1)
	go server.listen()

	return server, nil
}

// Addr returns the address the server is bound to
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting connections and waits for in-flight ones to finish.
// Connections still waiting for request bytes have their reads cut short,
// so a stalled client cannot hold Close open.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.active {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	s.conns.Wait()
	return err
}

// track registers conn until untrack. A conn registered after Close
// started gets an expired read deadline straight away.
func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[conn] = struct{}{}
	if s.closed.Load() {
		conn.SetReadDeadline(time.Now())
	}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

// listen accepts incoming connections and handles them
func (s *Server) listen() {
	defer s.conns.Done()
	for {
		select {
		case s.slots <- struct{}{}:
		case <-s.done:
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			<-s.slots
			// If server is closed, ignore connection errors
			if s.closed.Load() {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if s.timeout > 0 {
			if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
				s.logger.Warn("failed to set deadline", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}
		s.track(conn)

		s.conns.Add(1)
		// Handle each connection in a separate goroutine
		go func() {
			defer func() {
				s.untrack(conn)
				<-s.slots
				s.conns.Done()
			}()
			s.handle(conn)
		}()
	}
}

// handle runs one request/response cycle and closes the connection
func (s *Server) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.logger.With("remote", remote)
	log.Debug("connection accepted")
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug("close failed", "error", err)
		}
		log.Debug("connection closed")
	}()

	writer := response.NewWriter(conn)

	// Parse the request from the connection
	req, err := request.RequestFromReader(conn)
	if err != nil {
		status, ok := statusForParseError(err)
		if !ok {
			log.Debug("connection dropped before a request arrived", "error", err)
			return
		}
		log.Info("bad request", "status", int(status), "error", err)
		if err := writer.Respond(status); err != nil {
			log.Warn("failed to write error response", "error", err)
		}
		return
	}

	log.Info("request", "method", req.Method(), "path", req.Path())
	s.serve(log, writer, req)
}

// serve calls the handler, turning a panic or a missing response into a 500
func (s *Server) serve(log *slog.Logger, writer *response.Writer, req *request.Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", r, "method", req.Method(), "path", req.Path())
			s.fallback(log, writer)
		}
	}()

	s.handler(writer, req)
	s.fallback(log, writer)
}

// fallback sends a 500 when nothing has been written yet
func (s *Server) fallback(log *slog.Logger, writer *response.Writer) {
	if writer.Written() {
		return
	}
	if err := writer.Respond(response.StatusInternalServerError); err != nil {
		log.Warn("failed to write error response", "error", err)
	}
}

// statusForParseError maps a parse failure to the status sent back.
// It reports false for socket read errors (EOF, reset, timeout), after
// which the connection is closed without a response.
func statusForParseError(err error) (response.StatusCode, bool) {
	switch {
	case errors.Is(err, request.ErrMalformedRequestLine),
		errors.Is(err, request.ErrInvalidContentLength):
		return response.StatusBadRequest, true
	case errors.Is(err, request.ErrHeaderTooLarge),
		errors.Is(err, request.ErrBodyTooLarge),
		errors.Is(err, request.ErrIncompleteBody):
		return response.StatusInternalServerError, true
	default:
		return 0, false
	}
}
