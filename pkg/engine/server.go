package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/config"
	"github.com/neel-jay/claudeUIMCP/pkg/connection"
	"github.com/neel-jay/claudeUIMCP/pkg/dispatch"
	"github.com/neel-jay/claudeUIMCP/pkg/logging"
	"github.com/neel-jay/claudeUIMCP/pkg/metrics"
	"github.com/neel-jay/claudeUIMCP/pkg/plugin"
	"github.com/neel-jay/claudeUIMCP/pkg/relay"
)

// ServerName identifies this server on the management API.
const ServerName = "mcpd"

// Server is the control-plane server.
type Server struct {
	cfg        *config.Config
	log        *slog.Logger
	store      *config.Store
	version    string
	httpClient *http.Client

	registry   *connection.Registry
	handlers   *dispatch.HandlerRegistry
	dispatcher *dispatch.Dispatcher
	auth       *dispatch.Authenticator
	plugins    *plugin.Host
	relay      *relay.Relay
	metrics    *metrics.Metrics

	httpServer *http.Server
	listener   net.Listener

	mu         sync.RWMutex
	running    bool
	startTime  time.Time
	sweepStop  context.CancelFunc
	serveErrCh chan error
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStore sets the persistent settings store shared with plugins.
func WithStore(store *config.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithVersion sets the version string reported on /api/version.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.version = version
		}
	}
}

// WithHTTPClient sets the client used for relay calls.
func WithHTTPClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.httpClient = client
	}
}

// NewServer creates a Server from configuration. The returned server
// is not listening until Start.
func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		log:     logging.Nop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		if cfg.Plugins.StatePath == "" {
			s.store = config.NewMemoryStore()
		} else {
			store, err := config.NewStore(cfg.Plugins.StatePath)
			if err != nil {
				return nil, fmt.Errorf("open settings store: %w", err)
			}
			s.store = store
		}
	}

	// Config-declared disabled plugins join whatever the operator
	// toggled at runtime; the host reads the merged set from the store.
	if len(cfg.Plugins.Disabled) > 0 {
		s.store.Set("plugins.disabled",
			mergeDisabled(s.store.Get("plugins.disabled", nil), cfg.Plugins.Disabled))
	}

	s.metrics = metrics.New()
	s.registry = connection.NewRegistry(connection.Options{
		MaxConnections: cfg.Server.MaxConnections,
		IdleTimeout:    cfg.Server.IdleTimeout.Duration(),
		PingInterval:   cfg.Server.PingInterval.Duration(),
		Logger:         s.log,
		Events:         s.metrics,
	})
	s.handlers = dispatch.NewHandlerRegistry(s.log)
	s.relay = relay.New(relay.Options{Client: s.httpClient, Logger: s.log})
	s.plugins = plugin.NewHost(plugin.HostOptions{
		Logger: s.log,
		Store:  s.store,
		Server: s.registry,
	})
	s.auth = dispatch.NewAuthenticator(
		cfg.Server.AuthRequired,
		cfg.Server.AuthToken,
		cfg.Server.SessionTTL.Duration(),
	)
	s.dispatcher = dispatch.NewDispatcher(dispatch.Deps{
		Registry: s.registry,
		Handlers: s.handlers,
		Plugins:  s.plugins,
		Auth:     s.auth,
		Observer: s.metrics,
		Logger:   s.log,
	})

	for _, route := range cfg.Relay {
		err := s.relay.RegisterRoute(relay.RouteConfig{
			Name:        route.Name,
			BaseURL:     route.BaseURL,
			Endpoints:   route.Endpoints,
			Headers:     route.Headers,
			BearerToken: route.BearerToken,
			Timeout:     route.Timeout.Duration(),
		})
		if err != nil {
			return nil, err
		}
	}

	s.registerBuiltins()
	return s, nil
}

// mergeDisabled unions the persisted disabled list (yaml decodes it as
// []any, runtime writes []string) with the config-declared one.
func mergeDisabled(persisted any, fromConfig []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	switch list := persisted.(type) {
	case []string:
		for _, name := range list {
			add(name)
		}
	case []any:
		for _, v := range list {
			if name, ok := v.(string); ok {
				add(name)
			}
		}
	}
	for _, name := range fromConfig {
		add(name)
	}
	return out
}

// Handlers exposes the handler registry so embedders can add their own
// message types before Start.
func (s *Server) Handlers() *dispatch.HandlerRegistry { return s.handlers }

// Plugins exposes the plugin host for factory registration.
func (s *Server) Plugins() *plugin.Host { return s.plugins }

// Relay exposes the relay for route management at runtime.
func (s *Server) Relay() *relay.Relay { return s.relay }

// Registry exposes the connection registry.
func (s *Server) Registry() *connection.Registry { return s.registry }

// Start binds the listener and begins serving. A bind failure is
// returned to the caller; nothing is left running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	if s.cfg.Plugins.Dir != "" {
		if err := s.plugins.LoadDir(context.Background(), s.cfg.Plugins.Dir, s.cfg.Plugins.Load); err != nil {
			s.log.Warn("plugin directory scan failed", "dir", s.cfg.Plugins.Dir, "error", err)
		}
	}

	// Message types are client-chosen, so the dispatch counter only
	// labels namespaces the server actually serves.
	for _, key := range s.handlers.Keys() {
		if i := strings.IndexByte(key, '.'); i >= 0 {
			key = key[:i]
		}
		s.metrics.AllowNamespaces(key)
	}

	addr := net.JoinHostPort(s.cfg.Server.Host, fmt.Sprintf("%d", s.cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.sweepStop = cancel
	go s.registry.Run(sweepCtx)

	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErrCh = make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
		s.serveErrCh <- err
	}()

	s.running = true
	s.startTime = time.Now()
	s.log.Info("server started",
		"addr", listener.Addr().String(),
		"maxConnections", s.cfg.Server.MaxConnections,
		"authRequired", s.cfg.Server.AuthRequired,
	)
	return nil
}

// Addr returns the bound listener address, useful when Port is 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Uptime reports time since Start.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop shuts the server down: stop accepting, let plugins flush while
// connections are still open, then close every connection and tear the
// plugins down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var errs []error

	// Shutdown closes the listener first, so no new upgrades arrive
	// while plugins and connections wind down.
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	s.plugins.OnServerShutdown(ctx)
	s.registry.CloseAll(connection.ReasonShutdown)
	s.sweepStop()
	s.plugins.Shutdown(ctx)

	if err := s.store.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save settings: %w", err))
	}

	s.log.Info("server stopped")
	return errors.Join(errs...)
}
