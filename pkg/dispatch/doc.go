// Package dispatch routes inbound envelopes to exactly one target.
//
// Classification order for each decoded envelope:
//
//  1. Auth gate: when auth is required and the connection has not
//     authenticated, only system.auth passes; everything else is answered
//     with an unauthorized system error and routed no further.
//  2. System namespace: ping, auth, and register are handled inline.
//  3. Plugin chain: every enabled plugin's message hook runs in
//     registration order; the first to report handled short-circuits the
//     rest of the chain and the handler registry.
//  4. Handler registry: an exact-type handler, else a namespace handler.
//  5. Nothing matched: an unhandled notification plus a not-found system
//     error back to the sender.
//
// A panicking or failing handler or plugin hook is caught at the call
// site, logged, and converted into a server-error envelope; a fault in
// user code never takes the server down or closes the connection.
//
// Per-connection ordering is supplied by the caller: the engine invokes
// Dispatch synchronously from each connection's read loop, so the next
// message from a connection is not processed until the previous dispatch,
// including any relay call a handler makes, has settled.
package dispatch
