package connection

// Error is a simple error type for connection registry errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors for registry operations.
const (
	// ErrRegistryFull is returned by Add when the live connection count
	// has reached the configured maximum. The transport has already been
	// sent a server-error envelope and closed.
	ErrRegistryFull = Error("connection limit reached")

	// ErrConnectionNotFound is returned when an operation references a
	// connection ID that is not live.
	ErrConnectionNotFound = Error("connection not found")

	// ErrConnectionClosed is returned when writing to a connection whose
	// transport has been closed.
	ErrConnectionClosed = Error("connection closed")
)
