package connection

// CloseReason says why a connection left the registry.
type CloseReason string

// Close reasons reported through the event sink.
const (
	ReasonClientClose    CloseReason = "client_close"
	ReasonTransportError CloseReason = "transport_error"
	ReasonIdleTimeout    CloseReason = "idle_timeout"
	ReasonDisconnect     CloseReason = "disconnect"
	ReasonShutdown       CloseReason = "shutdown"
)

// EventSink receives connection lifecycle notifications. The registry
// calls it synchronously; implementations must not call back into the
// registry from the callback.
type EventSink interface {
	// ConnectionOpened fires after a connection is admitted.
	ConnectionOpened(c *Connection)
	// ConnectionClosed fires exactly once per removed connection.
	ConnectionClosed(c *Connection, reason CloseReason)
}

// NopEvents is an EventSink that ignores everything.
type NopEvents struct{}

// ConnectionOpened implements EventSink.
func (NopEvents) ConnectionOpened(*Connection) {}

// ConnectionClosed implements EventSink.
func (NopEvents) ConnectionClosed(*Connection, CloseReason) {}
