package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses raw bytes into an Envelope.
// It fails with ErrMalformedEnvelope if the payload is not valid JSON, is
// not a JSON object, or has no type. Version mismatches are not a decode
// concern; callers inspect Envelope.Version themselves.
func Decode(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return &env, nil
}

// Encode serializes an envelope to wire bytes.
// It fails with ErrSerialization when the data payload contains values the
// JSON encoder cannot represent; callers keep the connection open and
// surface the failure to the message producer instead.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrSerialization)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}
