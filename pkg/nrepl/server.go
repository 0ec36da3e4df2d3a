package nrepl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slatelisp/slate/pkg/runtime"
)

// Config holds the server configuration.
type Config struct {
	// Host is the interface to bind. Default: "127.0.0.1".
	Host string

	// Port is the TCP port. 0 asks the OS for an ephemeral port;
	// discover it through Ready, Addr or PortFile.
	Port int

	// ChunkSize is the per-read buffer size on each connection.
	// Default: 1024. Correctness does not depend on it: messages
	// split across reads reassemble through the frame remainder.
	ChunkSize int

	// PortFile, when set, is a path the bound port number is written
	// to once the listener is ready, for external discovery.
	PortFile string

	// HTTPAddr, when set, starts the HTTP sidecar on this address:
	// /healthz, /metrics, and a /nrepl websocket transport.
	HTTPAddr string

	// ShutdownTimeout bounds sidecar shutdown. Default: 5s.
	ShutdownTimeout time.Duration

	// Registry receives the server metrics. Default: a private
	// registry, exposed via the sidecar's /metrics.
	Registry *prometheus.Registry
}

// DefaultConfig returns a Config with the defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            0,
		ChunkSize:       1024,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server accepts connections and runs one session per connection.
type Server struct {
	config *Config
	env    *runtime.Env
	eval   runtime.Evaluator
	logger *slog.Logger

	metrics  *Metrics
	registry *prometheus.Registry
	tracer   *dispatchTracer

	transcripts TranscriptStore

	ln       net.Listener
	httpSrv  *http.Server
	httpAddr string
	ready    chan net.Addr

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	cancel context.CancelFunc
}

// New creates a server over the given naming environment and
// evaluation capability. A nil config uses DefaultConfig; unset fields
// are filled from it.
func New(config *Config, env *runtime.Env, eval runtime.Evaluator) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		defaults := DefaultConfig()
		if config.Host == "" {
			config.Host = defaults.Host
		}
		if config.ChunkSize <= 0 {
			config.ChunkSize = defaults.ChunkSize
		}
		if config.ShutdownTimeout == 0 {
			config.ShutdownTimeout = defaults.ShutdownTimeout
		}
	}
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Server{
		config:   config,
		env:      env,
		eval:     eval,
		logger:   slog.Default().With("component", "nrepl"),
		metrics:  NewMetrics(registry),
		registry: registry,
		tracer:   newDispatchTracer(),
		ready:    make(chan net.Addr, 1),
		conns:    map[net.Conn]struct{}{},
	}
}

// SetLogger sets the server logger. Call before Start.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "nrepl")
}

// SetTranscripts installs an eval transcript sink. Call before Start.
func (s *Server) SetTranscripts(store TranscriptStore) {
	s.transcripts = store
}

// Ready yields the bound address exactly once, after the listener is
// accepting. Embedding code uses it to learn an ephemeral port.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Registry returns the metrics registry, for embedding code that
// serves its own exposition endpoint.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start binds the listener, announces readiness, and begins accepting
// in a background goroutine. It returns once the server is reachable.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("nrepl: listen on %s: %w", addr, err)
	}
	s.ln = ln

	if s.config.PortFile != "" {
		port := ln.Addr().(*net.TCPAddr).Port
		if err := os.WriteFile(s.config.PortFile, []byte(strconv.Itoa(port)), 0o644); err != nil {
			ln.Close()
			return fmt.Errorf("nrepl: write port file: %w", err)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)

	if s.config.HTTPAddr != "" {
		if err := s.startHTTP(); err != nil {
			ln.Close()
			return err
		}
	}

	s.logger.Info("server listening", "addr", ln.Addr().String())
	s.ready <- ln.Addr()

	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop accepts until the listener closes. Each connection gets
// its own goroutine and a fresh session.
func (s *Server) acceptLoop(ctx context.Context) {
	d := &dispatcher{
		env:         s.env,
		eval:        s.eval,
		logger:      s.logger,
		metrics:     s.metrics,
		tracer:      s.tracer,
		transcripts: s.transcripts,
	}
	for {
		netConn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			netConn.Close()
			return
		}
		s.conns[netConn] = struct{}{}
		s.mu.Unlock()

		s.metrics.connOpened()
		c := newConn(netConn, d, s.config.ChunkSize, s.metrics, s.logger)
		go func() {
			defer s.forget(netConn)
			c.serve(ctx)
		}()
	}
}

func (s *Server) forget(netConn net.Conn) {
	s.mu.Lock()
	delete(s.conns, netConn)
	s.mu.Unlock()
}

// Shutdown stops accepting, releases the listening socket, and closes
// the sockets of open connections. It does not wait for in-flight
// evaluations: handler goroutines observe their closed socket or
// cancelled context and exit on their own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for _, c := range open {
		c.Close()
	}

	if s.httpSrv != nil {
		httpCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
		if herr := s.httpSrv.Shutdown(httpCtx); herr != nil && err == nil {
			err = herr
		}
	}

	if s.config.PortFile != "" {
		os.Remove(s.config.PortFile)
	}

	s.logger.Info("server stopped")
	return err
}
