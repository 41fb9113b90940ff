package plugin

import (
	"context"
	"log/slog"

	"github.com/neel-jay/claudeUIMCP/pkg/config"
	"github.com/neel-jay/claudeUIMCP/pkg/dispatch"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Plugin is the minimal contract every extension satisfies.
type Plugin interface {
	// Initialize prepares the plugin for use. It runs once per load,
	// before the plugin joins the dispatch chain.
	Initialize(ctx context.Context, pc *Context) error
}

// MessageHandler is implemented by plugins that want a look at inbound
// messages before registered handlers run. Returning true claims the
// message and stops dispatch.
type MessageHandler interface {
	HandleMessage(env *protocol.Envelope, dc *dispatch.Context) (bool, error)
}

// HookHandler is implemented by plugins exposing named hooks to the
// host and to other plugins.
type HookHandler interface {
	CallHook(ctx context.Context, hook string, args map[string]any) (any, error)
}

// ShutdownNotifier is implemented by plugins that want to flush state
// or notify peers while connections are still open.
type ShutdownNotifier interface {
	OnServerShutdown(ctx context.Context)
}

// Shutdowner is implemented by plugins that hold resources needing
// teardown on unload.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Context carries the host facilities handed to a plugin at
// Initialize time.
type Context struct {
	// Logger is scoped to the plugin's name.
	Logger *slog.Logger
	// Config is the shared persistent settings store. Plugins keep
	// their settings under "plugins.<name>.".
	Config *config.Store
	// Host is the owning plugin host, for hook fan-out and records.
	Host *Host
	// Manifest is the manifest the plugin was loaded from.
	Manifest *Manifest
	// Server lets a plugin push messages to connected clients.
	Server dispatch.Sender
}

// Factory builds a fresh plugin instance for each load.
type Factory func() Plugin
