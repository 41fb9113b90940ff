package protocol

import (
	"strings"
	"time"
)

// Version is the protocol version stamped on envelopes created by this
// server. Peers running a different version are logged, never rejected.
const Version = "1.0"

// Envelope is the JSON message unit exchanged over a connection.
type Envelope struct {
	// Type is the dot-namespaced message type, e.g. "system.ping" or
	// "tools.execute". Required.
	Type string `json:"type"`
	// Version is the sender's protocol version.
	Version string `json:"version,omitempty"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
	// Data is an opaque key-value payload.
	Data map[string]any `json:"data,omitempty"`
}

// NewEnvelope creates an envelope of the given type with a fresh timestamp
// and the current protocol version.
func NewEnvelope(msgType string, data map[string]any) *Envelope {
	return &Envelope{
		Type:      msgType,
		Version:   Version,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// Namespace returns the first dot-segment of the envelope type.
// For "tools.execute" it returns "tools"; for a type without a dot it
// returns the whole type.
func (e *Envelope) Namespace() string {
	if i := strings.IndexByte(e.Type, '.'); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// IsSystem reports whether the envelope belongs to the reserved system
// namespace.
func (e *Envelope) IsSystem() bool {
	return strings.HasPrefix(e.Type, NamespaceSystem+".")
}
