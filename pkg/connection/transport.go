package connection

import (
	"context"
)

// Transport is the exclusively-owned wire handle behind a Connection.
// The registry is the only writer; implementations do not need to be
// safe for concurrent Write calls.
type Transport interface {
	// Write sends one complete message frame.
	Write(ctx context.Context, data []byte) error
	// Close terminates the transport with a close code and reason.
	// Closing an already-closed transport must be a no-op.
	Close(code int, reason string) error
}

// Close codes passed to Transport.Close. They mirror RFC 6455 status
// codes so the WebSocket transport can forward them unchanged.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	ClosePolicyViolate = 1008
	CloseInternalError = 1011
	CloseTryAgainLater = 1013
)

// PeerInfo carries transport-level facts about the remote peer captured
// at accept time.
type PeerInfo struct {
	IPAddress string
	UserAgent string
}
