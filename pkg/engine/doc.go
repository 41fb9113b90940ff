// Package engine assembles the control-plane server.
//
// The Server owns the HTTP listener and ties the pieces together: the
// WebSocket upgrade endpoint feeds accepted connections into the
// connection registry, each connection's read loop hands inbound
// frames to the message dispatcher, the plugin host supplies the
// dispatch chain, and the relay forwards proxy-namespace messages to
// upstream HTTP services. A small management API and the Prometheus
// endpoint share the same listener.
package engine
