package dispatch

import (
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/connection"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Sender is the slice of the connection registry exposed to handlers and
// plugins. It is how user code replies or pushes to clients.
type Sender interface {
	Send(connID, msgType string, data map[string]any) error
	SendEnvelope(connID string, env *protocol.Envelope) error
	Broadcast(msgType string, data map[string]any, pred func(*connection.Connection) bool) int
}

// Context carries per-dispatch facts into handlers and plugin hooks.
type Context struct {
	// ConnectionID identifies the originating connection.
	ConnectionID string
	// Server sends envelopes back through the connection registry.
	Server Sender
	// Timestamp is when this dispatch began.
	Timestamp time.Time
}

// HandlerFunc is a registered callback bound to an exact message type or
// a namespace. A non-nil response envelope is sent back to the
// originating connection; a returned error becomes a server-error
// envelope.
type HandlerFunc func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error)

// Interceptor is one link of the plugin chain. Intercept returns true
// when the plugin consumed the envelope.
type Interceptor interface {
	Name() string
	Intercept(env *protocol.Envelope, dc *Context) (bool, error)
}

// InterceptorSource yields the active plugin chain in registration
// order. The dispatcher re-reads it on every dispatch so enable/disable
// takes effect immediately.
type InterceptorSource interface {
	Interceptors() []Interceptor
}

// Outcome classifies where a dispatch ended up, for observability.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeMalformed    Outcome = "malformed"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeSystem       Outcome = "system"
	OutcomePlugin       Outcome = "plugin"
	OutcomeHandler      Outcome = "handler"
	OutcomeUnhandled    Outcome = "unhandled"
	OutcomeFault        Outcome = "fault"
)

// Observer receives one notification per completed dispatch.
type Observer interface {
	MessageDispatched(outcome Outcome, msgType string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

// MessageDispatched implements Observer.
func (NopObserver) MessageDispatched(Outcome, string) {}
