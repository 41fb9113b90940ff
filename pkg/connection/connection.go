package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Stats is a snapshot of a connection's message counters.
type Stats struct {
	Received int64 `json:"received"`
	Sent     int64 `json:"sent"`
	Errors   int64 `json:"errors"`
}

// Connection represents one live client connection.
type Connection struct {
	id          string
	transport   Transport
	ipAddress   string
	userAgent   string
	connectedAt time.Time

	lastActivityAt atomic.Int64 // unix nanos, non-decreasing
	authenticated  atomic.Bool
	received       atomic.Int64
	sent           atomic.Int64
	errors         atomic.Int64
	closed         atomic.Bool

	clientInfo map[string]any
	mu         sync.RWMutex

	// writeMu serializes transport writes against close.
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func newConnection(connID string, t Transport, peer PeerInfo) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:          connID,
		transport:   t,
		ipAddress:   peer.IPAddress,
		userAgent:   peer.UserAgent,
		connectedAt: time.Now(),
		clientInfo:  make(map[string]any),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.lastActivityAt.Store(c.connectedAt.UnixNano())
	return c
}

// ID returns the unique connection ID.
func (c *Connection) ID() string { return c.id }

// IPAddress returns the peer address captured at accept time.
func (c *Connection) IPAddress() string { return c.ipAddress }

// UserAgent returns the peer user agent captured at accept time.
func (c *Connection) UserAgent() string { return c.userAgent }

// ConnectedAt returns the connection establishment time.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// LastActivityAt returns the time of the last activity credited to this
// connection. It never decreases while the connection is live.
func (c *Connection) LastActivityAt() time.Time {
	return time.Unix(0, c.lastActivityAt.Load())
}

// Touch credits activity to the connection now. Server-initiated pings
// deliberately do not call this; only inbound client traffic and
// successful directed sends refresh activity.
func (c *Connection) Touch() {
	now := time.Now().UnixNano()
	for {
		prev := c.lastActivityAt.Load()
		if now <= prev || c.lastActivityAt.CompareAndSwap(prev, now) {
			return
		}
	}
}

// RecordInbound counts one received message and credits activity.
func (c *Connection) RecordInbound() {
	c.received.Add(1)
	c.Touch()
}

// Authenticated reports the auth state.
func (c *Connection) Authenticated() bool { return c.authenticated.Load() }

// MarkAuthenticated transitions the connection to the authenticated
// state. The transition is one-way; there is no way back.
func (c *Connection) MarkAuthenticated() { c.authenticated.Store(true) }

// IsClosed reports whether the transport has been closed.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Context is canceled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// Stats returns a snapshot of the message counters.
func (c *Connection) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Sent:     c.sent.Load(),
		Errors:   c.errors.Load(),
	}
}

// ClientInfo returns a copy of the client-reported info map.
func (c *Connection) ClientInfo() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := make(map[string]any, len(c.clientInfo))
	for k, v := range c.clientInfo {
		info[k] = v
	}
	return info
}

// MergeClientInfo merges keys from a system.register payload into the
// client info map. Existing keys are overwritten.
func (c *Connection) MergeClientInfo(info map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range info {
		c.clientInfo[k] = v
	}
}

// WriteEnvelope encodes and writes an envelope to the transport.
// A serialization failure is returned without touching the transport; a
// transport failure increments the error counter but does not close or
// remove the connection. On success the sent counter is incremented.
// Activity is NOT credited here; Registry.Send layers that on for
// directed sends so that liveness pings stay activity-neutral.
func (c *Connection) WriteEnvelope(env *protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.writeRaw(raw)
}

func (c *Connection) writeRaw(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.transport.Write(c.ctx, raw); err != nil {
		c.errors.Add(1)
		return err
	}
	c.sent.Add(1)
	return nil
}

// close terminates the transport exactly once. Reason text travels in
// the close frame where the transport supports it.
func (c *Connection) close(code int, reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.writeMu.Lock()
	_ = c.transport.Close(code, reason)
	c.writeMu.Unlock()
}
