// Package connection owns the set of live client connections.
//
// A Connection pairs an exclusively-owned transport handle with per
// connection metadata: peer address, user agent, client-reported info,
// authentication state, activity timestamps, and message counters.
//
// The Registry is the single owner of the connection map. All mutation
// goes through its public operations: Add enforces the live-connection
// cap, Remove is idempotent and fires the disconnect event exactly once,
// Send and Broadcast serialize envelopes through the protocol codec, and
// the liveness sweep removes idle connections and pings the rest.
//
// Lifecycle per connection:
//
//	CONNECTED -> AUTHENTICATED -> CLOSED
//
// CLOSED is terminal and reachable from either prior state via close,
// transport error, idle timeout, or explicit disconnect. Authentication
// transitions only from false to true, and only through the dispatcher's
// system.auth handling.
package connection
