package protocol

// NamespaceSystem is the reserved namespace for built-in message types.
const NamespaceSystem = "system"

// Built-in system message types.
const (
	TypePing             = "system.ping"
	TypePong             = "system.pong"
	TypeAuth             = "system.auth"
	TypeAuthResponse     = "system.auth_response"
	TypeRegister         = "system.register"
	TypeRegisterResponse = "system.register_response"
	TypeError            = "system.error"
)

// Wire error codes carried in system.error envelopes.
const (
	CodeInvalidMessage = 100
	CodeInvalidType    = 101
	CodeInvalidFormat  = 102
	CodeUnauthorized   = 200
	CodeForbidden      = 201
	CodeNotFound       = 300
	CodeServerError    = 500
)

// NewSystemError builds a system.error envelope.
// details may be nil; it is omitted from the payload when empty.
func NewSystemError(code int, message string, details map[string]any) *Envelope {
	data := map[string]any{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		data["details"] = details
	}
	return NewEnvelope(TypeError, data)
}

// NewPong builds the reply to a system.ping, echoing the caller's data
// under "echo" with a fresh server timestamp.
func NewPong(pingData map[string]any) *Envelope {
	env := NewEnvelope(TypePong, map[string]any{
		"echo": pingData,
	})
	env.Data["timestamp"] = env.Timestamp
	return env
}
