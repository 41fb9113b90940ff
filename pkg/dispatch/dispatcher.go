package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/connection"
	"github.com/neel-jay/claudeUIMCP/pkg/logging"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Dispatcher classifies inbound envelopes and routes each to exactly one
// target: an inline system handler, the plugin chain, a registered
// handler, or the unhandled path.
type Dispatcher struct {
	registry *connection.Registry
	handlers *HandlerRegistry
	plugins  InterceptorSource
	auth     *Authenticator
	observer Observer
	log      *slog.Logger
}

// emptyChain is the fallback when no plugin host is attached.
type emptyChain struct{}

func (emptyChain) Interceptors() []Interceptor { return nil }

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Registry *connection.Registry
	Handlers *HandlerRegistry
	Plugins  InterceptorSource // nil means no plugin chain
	Auth     *Authenticator
	Observer Observer // nil means none
	Logger   *slog.Logger
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Plugins == nil {
		deps.Plugins = emptyChain{}
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Auth == nil {
		deps.Auth = NewAuthenticator(false, "", 0)
	}
	return &Dispatcher{
		registry: deps.Registry,
		handlers: deps.Handlers,
		plugins:  deps.Plugins,
		auth:     deps.Auth,
		observer: deps.Observer,
		log:      deps.Logger.With("component", "dispatch"),
	}
}

// Dispatch processes one raw inbound frame from a connection. It never
// returns an error: every failure mode resolves into either a system
// error envelope to the peer or a log line. Callers invoke it
// synchronously per connection to preserve arrival-order processing.
func (d *Dispatcher) Dispatch(conn *connection.Connection, raw []byte) {
	conn.RecordInbound()

	env, err := protocol.Decode(raw)
	if err != nil {
		d.log.Warn("malformed envelope", "conn", conn.ID(), "error", err)
		d.sendError(conn.ID(), protocol.CodeInvalidMessage, "invalid message envelope", map[string]any{
			"error": err.Error(),
		})
		d.observer.MessageDispatched(OutcomeMalformed, "")
		return
	}

	if env.Version != "" && env.Version != protocol.Version {
		// Forward compatible: mismatches are logged, never rejected.
		d.log.Debug("protocol version mismatch", "conn", conn.ID(), "theirs", env.Version, "ours", protocol.Version)
	}

	dc := &Context{
		ConnectionID: conn.ID(),
		Server:       d.registry,
		Timestamp:    time.Now(),
	}

	// Auth gate: an unauthenticated connection may only authenticate.
	if d.auth.Required() && !conn.Authenticated() && env.Type != protocol.TypeAuth {
		d.log.Warn("unauthenticated message rejected", "conn", conn.ID(), "type", env.Type)
		d.sendError(conn.ID(), protocol.CodeUnauthorized, "authentication required", map[string]any{
			"type": env.Type,
		})
		d.observer.MessageDispatched(OutcomeUnauthorized, env.Type)
		return
	}

	if env.IsSystem() {
		d.dispatchSystem(conn, env, dc)
		return
	}

	if d.runPlugins(env, dc) {
		return
	}

	if handler, key := d.handlers.Lookup(env); handler != nil {
		d.runHandler(handler, key, env, dc)
		return
	}

	d.log.Info("unhandled message", "conn", conn.ID(), "type", env.Type)
	d.sendError(conn.ID(), protocol.CodeNotFound, fmt.Sprintf("no handler for type %q", env.Type), nil)
	d.observer.MessageDispatched(OutcomeUnhandled, env.Type)
}

// dispatchSystem handles the reserved system namespace inline.
func (d *Dispatcher) dispatchSystem(conn *connection.Connection, env *protocol.Envelope, dc *Context) {
	switch env.Type {
	case protocol.TypePing:
		if err := d.registry.SendEnvelope(conn.ID(), protocol.NewPong(env.Data)); err != nil {
			d.log.Warn("pong delivery failed", "conn", conn.ID(), "error", err)
		}

	case protocol.TypeAuth:
		d.handleAuth(conn, env)

	case protocol.TypeRegister:
		conn.MergeClientInfo(env.Data)
		_ = d.registry.Send(conn.ID(), protocol.TypeRegisterResponse, map[string]any{
			"success":      true,
			"connectionId": conn.ID(),
		})

	default:
		d.log.Info("unhandled system message", "conn", conn.ID(), "type", env.Type)
		d.observer.MessageDispatched(OutcomeUnhandled, env.Type)
		return
	}
	d.observer.MessageDispatched(OutcomeSystem, env.Type)
}

func (d *Dispatcher) handleAuth(conn *connection.Connection, env *protocol.Envelope) {
	session, err := d.auth.Verify(conn.ID(), env.Data)
	if err != nil {
		d.log.Warn("authentication failed", "conn", conn.ID(), "error", err)
		_ = d.registry.Send(conn.ID(), protocol.TypeAuthResponse, map[string]any{
			"success": false,
			"error":   "invalid credentials",
		})
		return
	}

	// Without an auth gate the connection's flag stays false; the
	// response still carries a usable session token.
	if d.auth.Required() {
		conn.MarkAuthenticated()
	}
	_ = d.registry.Send(conn.ID(), protocol.TypeAuthResponse, map[string]any{
		"success":      true,
		"expiresAt":    session.ExpiresAt,
		"sessionToken": session.Token,
	})
	d.log.Info("connection authenticated", "conn", conn.ID())
}

// runPlugins walks the plugin chain in registration order. The first
// plugin that reports handled wins. A faulting plugin ends the dispatch
// with a server-error envelope; the sender gets exactly one response.
func (d *Dispatcher) runPlugins(env *protocol.Envelope, dc *Context) bool {
	for _, ic := range d.plugins.Interceptors() {
		handled, err := d.intercept(ic, env, dc)
		if err != nil {
			d.log.Error("plugin hook failed", "plugin", ic.Name(), "type", env.Type, "error", err)
			d.sendError(dc.ConnectionID, protocol.CodeServerError, "plugin error", map[string]any{
				"plugin": ic.Name(),
			})
			d.observer.MessageDispatched(OutcomeFault, env.Type)
			return true
		}
		if handled {
			d.observer.MessageDispatched(OutcomePlugin, env.Type)
			return true
		}
	}
	return false
}

// intercept calls one plugin hook with panic containment.
func (d *Dispatcher) intercept(ic Interceptor, env *protocol.Envelope, dc *Context) (handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			handled = false
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return ic.Intercept(env, dc)
}

// runHandler executes a registered handler with panic containment and
// delivers its response.
func (d *Dispatcher) runHandler(handler HandlerFunc, key string, env *protocol.Envelope, dc *Context) {
	resp, err := d.callHandler(handler, env, dc)
	if err != nil {
		d.log.Error("handler failed", "key", key, "type", env.Type, "error", err)
		d.sendError(dc.ConnectionID, protocol.CodeServerError, "handler error", map[string]any{
			"type": env.Type,
		})
		d.observer.MessageDispatched(OutcomeFault, env.Type)
		return
	}
	if resp != nil {
		if err := d.registry.SendEnvelope(dc.ConnectionID, resp); err != nil {
			d.log.Warn("response delivery failed", "conn", dc.ConnectionID, "type", resp.Type, "error", err)
		}
	}
	d.observer.MessageDispatched(OutcomeHandler, env.Type)
}

func (d *Dispatcher) callHandler(handler HandlerFunc, env *protocol.Envelope, dc *Context) (resp *protocol.Envelope, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return handler(dc, env)
}

func (d *Dispatcher) sendError(connID string, code int, message string, details map[string]any) {
	if err := d.registry.SendEnvelope(connID, protocol.NewSystemError(code, message, details)); err != nil {
		d.log.Debug("error delivery failed", "conn", connID, "error", err)
	}
}
