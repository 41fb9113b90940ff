// Package protocol implements the wire envelope codec for the
// control-plane message protocol.
//
// Every message exchanged over a connection is a JSON envelope:
//
//	{"type": "system.ping", "version": "1.0", "timestamp": 1712345678901, "data": {...}}
//
// The type is dot-namespaced; its first segment is the namespace used for
// handler lookup. The data field is an opaque key-value map owned by the
// message producer.
//
// Decode validates structure only: the payload must be a JSON object with a
// non-empty type. A version mismatch is never a decode failure; callers log
// it and continue, which keeps the protocol forward compatible.
//
// The package also defines the built-in system message types
// (ping/pong, auth, register, error) and the numeric wire error codes.
package protocol
