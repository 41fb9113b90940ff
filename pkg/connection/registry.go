package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neel-jay/claudeUIMCP/internal/id"
	"github.com/neel-jay/claudeUIMCP/pkg/logging"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Options configures a Registry.
type Options struct {
	// MaxConnections caps the live connection count. Zero means 100.
	MaxConnections int
	// IdleTimeout is the inactivity window after which the sweep removes
	// a connection. Zero disables idle removal.
	IdleTimeout time.Duration
	// PingInterval is the sweep cadence. Zero means 30s.
	PingInterval time.Duration
	// Logger is the operational logger. Nil means no logging.
	Logger *slog.Logger
	// Events receives lifecycle notifications. Nil means none.
	Events EventSink
}

// Registry is the single owner of the live connection set.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	maxConnections int
	idleTimeout    time.Duration
	pingInterval   time.Duration
	events         EventSink
	log            *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 100
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Registry{
		conns:          make(map[string]*Connection),
		maxConnections: opts.MaxConnections,
		idleTimeout:    opts.IdleTimeout,
		pingInterval:   opts.PingInterval,
		events:         opts.Events,
		log:            opts.Logger.With("component", "connections"),
	}
}

// Add admits a new connection. When the registry is at capacity, the
// transport is sent a server-error envelope, closed, and ErrRegistryFull
// is returned; the live count is unchanged.
func (r *Registry) Add(t Transport, peer PeerInfo) (*Connection, error) {
	r.mu.Lock()
	if len(r.conns) >= r.maxConnections {
		r.mu.Unlock()
		r.rejectFull(t)
		return nil, ErrRegistryFull
	}

	conn := newConnection(id.Connection(), t, peer)
	r.conns[conn.id] = conn
	r.mu.Unlock()

	r.log.Info("connection opened",
		"id", conn.id,
		"ip", peer.IPAddress,
		"userAgent", peer.UserAgent,
		"live", r.Count(),
	)
	r.events.ConnectionOpened(conn)
	return conn, nil
}

// rejectFull tells the peer why it is being turned away, best effort.
func (r *Registry) rejectFull(t Transport) {
	env := protocol.NewSystemError(protocol.CodeServerError, "connection limit reached", nil)
	if raw, err := protocol.Encode(env); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = t.Write(ctx, raw)
		cancel()
	}
	_ = t.Close(CloseTryAgainLater, "connection limit reached")
	r.log.Warn("connection rejected", "reason", "registry full", "max", r.maxConnections)
}

// Remove takes a connection out of the registry and closes its transport
// if still open. It is idempotent: removing an unknown or already-removed
// ID is a no-op, and the disconnect event fires exactly once.
func (r *Registry) Remove(connID string, reason CloseReason) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	code := CloseNormal
	if reason == ReasonIdleTimeout {
		code = CloseGoingAway
	}
	conn.close(code, string(reason))

	r.log.Info("connection closed", "id", connID, "reason", reason, "live", r.Count())
	r.events.ConnectionClosed(conn, reason)
}

// Get returns a live connection by ID.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// List returns a snapshot of all live connections.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send builds an envelope and delivers it to one connection. A transport
// write failure counts against the connection's error stat and is
// returned, but the connection stays registered; on success the sent
// counter and activity timestamp are updated.
func (r *Registry) Send(connID, msgType string, data map[string]any) error {
	conn, ok := r.Get(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	return r.deliver(conn, protocol.NewEnvelope(msgType, data))
}

// SendEnvelope delivers a pre-built envelope to one connection.
func (r *Registry) SendEnvelope(connID string, env *protocol.Envelope) error {
	conn, ok := r.Get(connID)
	if !ok {
		return ErrConnectionNotFound
	}
	return r.deliver(conn, env)
}

func (r *Registry) deliver(conn *Connection, env *protocol.Envelope) error {
	if err := conn.WriteEnvelope(env); err != nil {
		r.log.Warn("send failed", "id", conn.id, "type", env.Type, "error", err)
		return err
	}
	conn.Touch()
	return nil
}

// Broadcast sends an envelope to every connection matching the predicate
// and returns the number delivered. A nil predicate matches everything.
// Individual failures are skipped; delivery is best effort.
func (r *Registry) Broadcast(msgType string, data map[string]any, pred func(*Connection) bool) int {
	env := protocol.NewEnvelope(msgType, data)
	delivered := 0
	for _, conn := range r.List() {
		if pred != nil && !pred(conn) {
			continue
		}
		if err := r.deliver(conn, env); err == nil {
			delivered++
		}
	}
	return delivered
}

// Sweep runs one liveness pass: connections idle past the timeout are
// removed; everything else is pinged. Ping delivery does not refresh the
// connection's activity timestamp — only inbound client traffic keeps a
// connection alive, so a silent client is eventually timed out no matter
// how many pings it was sent.
func (r *Registry) Sweep(now time.Time) {
	for _, conn := range r.List() {
		if r.idleTimeout > 0 && now.Sub(conn.LastActivityAt()) > r.idleTimeout {
			r.log.Info("idle timeout", "id", conn.id, "idle", now.Sub(conn.LastActivityAt()))
			r.Remove(conn.id, ReasonIdleTimeout)
			continue
		}
		ping := protocol.NewEnvelope(protocol.TypePing, map[string]any{
			"timestamp": now.UnixMilli(),
		})
		if err := conn.WriteEnvelope(ping); err != nil {
			r.log.Debug("ping failed", "id", conn.id, "error", err)
		}
	}
}

// Run drives the liveness sweep until ctx is canceled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// CloseAll removes every live connection, used during shutdown.
func (r *Registry) CloseAll(reason CloseReason) {
	for _, conn := range r.List() {
		r.Remove(conn.id, reason)
	}
}
