package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// Sentinel errors for envelope encoding and decoding.
const (
	// ErrMalformedEnvelope is returned by Decode when the payload is not
	// valid JSON, not an object, or is missing the type field.
	ErrMalformedEnvelope = Error("malformed envelope")

	// ErrSerialization is returned by Encode when the envelope data cannot
	// be encoded to JSON. Callers must handle this without terminating the
	// connection.
	ErrSerialization = Error("envelope not serializable")
)
