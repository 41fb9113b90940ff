// Package relay forwards messages from connected clients to upstream
// HTTP services.
//
// Routes are registered by name, each with a base URL, optional
// endpoint aliases, default headers, a bearer token or auth callback,
// and a per-route timeout. Forward resolves a route, merges headers,
// issues the request under a deadline, and classifies failures into
// timeout, network and upstream errors so callers can map them onto
// protocol error codes.
package relay
