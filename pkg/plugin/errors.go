package plugin

// Error is a sentinel error type for plugin hosting failures.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrInvalidManifest indicates a manifest that failed validation.
	ErrInvalidManifest = Error("invalid plugin manifest")
	// ErrUnknownFactory indicates a manifest naming an unregistered factory.
	ErrUnknownFactory = Error("unknown plugin factory")
	// ErrDuplicatePlugin indicates a second load under an in-use name.
	ErrDuplicatePlugin = Error("plugin already loaded")
	// ErrPluginNotFound indicates an operation on a plugin that is not loaded.
	ErrPluginNotFound = Error("plugin not found")
	// ErrPluginInit indicates a plugin whose Initialize failed or panicked.
	ErrPluginInit = Error("plugin initialization failed")
)
