package dispatch

import (
	"log/slog"
	"sync"

	"github.com/neel-jay/claudeUIMCP/pkg/logging"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// HandlerRegistry maps message types and namespaces to handlers.
//
// A key containing a dot ("tools.execute") binds an exact type; a bare
// key ("tools") binds every type in that namespace. Exact entries shadow
// namespace entries for the same dispatch. Re-registering a key
// overwrites the previous handler; last writer wins.
type HandlerRegistry struct {
	mu      sync.RWMutex
	entries map[string]HandlerFunc
	log     *slog.Logger
}

// NewHandlerRegistry creates an empty HandlerRegistry.
func NewHandlerRegistry(log *slog.Logger) *HandlerRegistry {
	if log == nil {
		log = logging.Nop()
	}
	return &HandlerRegistry{
		entries: make(map[string]HandlerFunc),
		log:     log.With("component", "handlers"),
	}
}

// Register binds a handler to an exact type or namespace key.
// Overwriting an existing key is allowed and logged at debug level.
func (r *HandlerRegistry) Register(key string, h HandlerFunc) {
	r.mu.Lock()
	if _, exists := r.entries[key]; exists {
		r.log.Debug("handler overwritten", "key", key)
	}
	r.entries[key] = h
	r.mu.Unlock()
}

// Unregister removes a handler binding. Unknown keys are a no-op.
func (r *HandlerRegistry) Unregister(key string) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Lookup resolves the handler for an envelope: the exact type first,
// then the type's namespace. The second return reports which key
// matched, empty when nothing did.
func (r *HandlerRegistry) Lookup(env *protocol.Envelope) (HandlerFunc, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.entries[env.Type]; ok {
		return h, env.Type
	}
	if ns := env.Namespace(); ns != env.Type {
		if h, ok := r.entries[ns]; ok {
			return h, ns
		}
	}
	// A dotless type is its own namespace; the exact lookup above
	// already covered it.
	return nil, ""
}

// Keys returns all registered keys, for the admin surface.
func (r *HandlerRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}
