package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/neel-jay/claudeUIMCP/pkg/config"
	"github.com/neel-jay/claudeUIMCP/pkg/dispatch"
	"github.com/neel-jay/claudeUIMCP/pkg/logging"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// Host owns plugin lifecycle and exposes the loaded set as the
// dispatcher's interceptor chain.
type Host struct {
	mu        sync.RWMutex
	log       *slog.Logger
	store     *config.Store
	server    dispatch.Sender
	factories map[string]Factory
	loaded    map[string]*loadedPlugin
	order     []string
}

type loadedPlugin struct {
	manifest   *Manifest
	instance   Plugin
	handler    MessageHandler
	filter     *filter
	enabled    bool
	sourcePath string
}

// Record is the management-API view of one loaded plugin.
type Record struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Filter      string `json:"filter,omitempty"`
	SourcePath  string `json:"sourcePath,omitempty"`
}

// HostOptions configures a Host. Zero values are usable: a nop logger,
// an in-memory settings store, no server sender.
type HostOptions struct {
	Logger *slog.Logger
	Store  *config.Store
	Server dispatch.Sender
}

// NewHost builds an empty Host.
func NewHost(opts HostOptions) *Host {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Store == nil {
		opts.Store = config.NewMemoryStore()
	}
	return &Host{
		log:       opts.Logger,
		store:     opts.Store,
		server:    opts.Server,
		factories: make(map[string]Factory),
		loaded:    make(map[string]*loadedPlugin),
	}
}

// RegisterFactory makes a factory available to manifests under name.
// Registering over an existing name replaces it; loaded instances are
// unaffected until reloaded.
func (h *Host) RegisterFactory(name string, f Factory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.factories[name]; exists {
		h.log.Debug("replacing plugin factory", "factory", name)
	}
	h.factories[name] = f
}

// Load activates a manifest: the named factory builds an instance,
// Initialize runs, and the plugin joins the chain at the end of the
// load order.
func (h *Host) Load(ctx context.Context, m *Manifest, sourcePath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked(ctx, m, sourcePath)
}

func (h *Host) loadLocked(ctx context.Context, m *Manifest, sourcePath string) error {
	if _, exists := h.loaded[m.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, m.Name)
	}
	factory, ok := h.factories[m.FactoryName()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFactory, m.FactoryName())
	}
	flt, err := compileFilter(m.Filter)
	if err != nil {
		return err
	}

	// Manifest settings seed the store without clobbering values the
	// operator already persisted.
	for key, value := range m.Settings {
		path := "plugins." + m.Name + "." + key
		if h.store.Get(path, nil) == nil {
			h.store.Set(path, value)
		}
	}

	instance := factory()
	pc := &Context{
		Logger:   h.log.With("plugin", m.Name),
		Config:   h.store,
		Host:     h,
		Manifest: m,
		Server:   h.server,
	}
	if err := initPlugin(ctx, instance, pc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPluginInit, m.Name, err)
	}

	lp := &loadedPlugin{
		manifest:   m,
		instance:   instance,
		filter:     flt,
		enabled:    !h.isDisabled(m.Name),
		sourcePath: sourcePath,
	}
	if mh, ok := instance.(MessageHandler); ok {
		lp.handler = mh
	}
	h.loaded[m.Name] = lp
	h.order = append(h.order, m.Name)
	h.log.Info("plugin loaded",
		"plugin", m.Name,
		"version", m.Version,
		"enabled", lp.enabled,
	)
	return nil
}

func initPlugin(ctx context.Context, p Plugin, pc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Initialize(ctx, pc)
}

// LoadDir scans dir for plugin subdirectories and loads each. The
// manifest is optional: a directory without one activates the factory
// registered under the directory's name with defaults (version 0.1.0).
// loadOrder pins the position of the named plugins; the rest follow
// lexically. Individual failures are logged and skipped.
func (h *Host) LoadDir(ctx context.Context, dir string, loadOrder []string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read plugin dir %s: %w", dir, err)
	}

	manifests := make(map[string]string) // plugin name -> manifest path
	byName := make(map[string]*Manifest)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), ManifestFileName)
		if _, err := os.Stat(path); err != nil {
			if m := h.defaultManifest(entry.Name()); m != nil {
				byName[m.Name] = m
				manifests[m.Name] = ""
			}
			continue
		}
		m, err := LoadManifest(path)
		if err != nil {
			h.log.Warn("skipping plugin", "path", path, "error", err)
			continue
		}
		manifests[m.Name] = path
		byName[m.Name] = m
	}

	ordered := make([]string, 0, len(byName))
	seen := make(map[string]bool)
	for _, name := range loadOrder {
		if _, ok := byName[name]; ok && !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(byName))
	for name := range byName {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range ordered {
		if err := h.loadLocked(ctx, byName[name], manifests[name]); err != nil {
			h.log.Warn("plugin load failed", "plugin", name, "error", err)
		}
	}
	return nil
}

// defaultManifest synthesizes a manifest for a manifest-less plugin
// directory, provided a factory is registered under the directory's
// name. Directories matching no factory are not plugins.
func (h *Host) defaultManifest(dirName string) *Manifest {
	h.mu.RLock()
	_, ok := h.factories[dirName]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return &Manifest{Name: dirName, Version: "0.1.0"}
}

// Unload tears down a plugin and removes it from the chain. A
// subsequent Load of the same manifest builds a fresh instance.
func (h *Host) Unload(ctx context.Context, name string) error {
	h.mu.Lock()
	lp, ok := h.loaded[name]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	delete(h.loaded, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	if sd, ok := lp.instance.(Shutdowner); ok {
		if err := callShutdown(ctx, sd); err != nil {
			h.log.Warn("plugin shutdown failed", "plugin", name, "error", err)
		}
	}
	h.log.Info("plugin unloaded", "plugin", name)
	return nil
}

func callShutdown(ctx context.Context, sd Shutdowner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sd.Shutdown(ctx)
}

// Enable puts a plugin back into the dispatch chain and persists the
// choice.
func (h *Host) Enable(name string) error { return h.setEnabled(name, true) }

// Disable removes a plugin from the dispatch chain without unloading
// it, and persists the choice.
func (h *Host) Disable(name string) error { return h.setEnabled(name, false) }

func (h *Host) setEnabled(name string, enabled bool) error {
	h.mu.Lock()
	lp, ok := h.loaded[name]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	lp.enabled = enabled

	disabled := make([]string, 0)
	for _, n := range h.order {
		if !h.loaded[n].enabled {
			disabled = append(disabled, n)
		}
	}
	h.store.Set("plugins.disabled", disabled)
	h.mu.Unlock()

	if err := h.store.Save(); err != nil {
		h.log.Warn("failed to persist plugin state", "error", err)
	}
	return nil
}

func (h *Host) isDisabled(name string) bool {
	disabled, _ := h.store.Get("plugins.disabled", nil).([]string)
	for _, n := range disabled {
		if n == name {
			return true
		}
	}
	// A store loaded from disk decodes lists as []any.
	raw, _ := h.store.Get("plugins.disabled", nil).([]any)
	for _, v := range raw {
		if s, ok := v.(string); ok && s == name {
			return true
		}
	}
	return false
}

// Records lists loaded plugins in load order.
func (h *Host) Records() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, 0, len(h.order))
	for _, name := range h.order {
		lp := h.loaded[name]
		out = append(out, Record{
			Name:        lp.manifest.Name,
			Version:     lp.manifest.Version,
			Description: lp.manifest.Description,
			Enabled:     lp.enabled,
			Filter:      lp.manifest.Filter,
			SourcePath:  lp.sourcePath,
		})
	}
	return out
}

// HookResult is one plugin's answer to a CallHook fan-out.
type HookResult struct {
	Plugin string
	Result any
	Err    error
}

// CallHook invokes a named hook on every enabled plugin that exposes
// hooks, in load order. One plugin's failure or panic never stops the
// rest; each outcome is reported in its own result.
func (h *Host) CallHook(ctx context.Context, hook string, args map[string]any) []HookResult {
	h.mu.RLock()
	type target struct {
		name    string
		handler HookHandler
	}
	targets := make([]target, 0, len(h.order))
	for _, name := range h.order {
		lp := h.loaded[name]
		if !lp.enabled {
			continue
		}
		if hh, ok := lp.instance.(HookHandler); ok {
			targets = append(targets, target{name: name, handler: hh})
		}
	}
	h.mu.RUnlock()

	results := make([]HookResult, 0, len(targets))
	for _, t := range targets {
		result, err := callHook(ctx, t.handler, hook, args)
		if err != nil {
			h.log.Warn("plugin hook failed", "plugin", t.name, "hook", hook, "error", err)
		}
		results = append(results, HookResult{Plugin: t.name, Result: result, Err: err})
	}
	return results
}

func callHook(ctx context.Context, hh HookHandler, hook string, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hh.CallHook(ctx, hook, args)
}

// Interceptors implements dispatch.InterceptorSource. Only enabled
// plugins with a message hook appear, in load order.
func (h *Host) Interceptors() []dispatch.Interceptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]dispatch.Interceptor, 0, len(h.order))
	for _, name := range h.order {
		lp := h.loaded[name]
		if !lp.enabled || lp.handler == nil {
			continue
		}
		out = append(out, &chainLink{name: name, plugin: lp})
	}
	return out
}

// OnServerShutdown notifies enabled plugins implementing
// ShutdownNotifier, in load order, isolating panics so one plugin
// cannot block the rest. Disabled plugins sit the hook out the same
// way they sit out dispatch.
func (h *Host) OnServerShutdown(ctx context.Context) {
	h.mu.RLock()
	notifiers := make([]ShutdownNotifier, 0, len(h.order))
	names := make([]string, 0, len(h.order))
	for _, name := range h.order {
		lp := h.loaded[name]
		if !lp.enabled {
			continue
		}
		if n, ok := lp.instance.(ShutdownNotifier); ok {
			notifiers = append(notifiers, n)
			names = append(names, name)
		}
	}
	h.mu.RUnlock()

	for i, n := range notifiers {
		notifyShutdown(ctx, n, names[i], h.log)
	}
}

func notifyShutdown(ctx context.Context, n ShutdownNotifier, name string, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("plugin shutdown notification panicked", "plugin", name, "panic", r)
		}
	}()
	n.OnServerShutdown(ctx)
}

// Shutdown unloads every plugin, in reverse load order.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.RLock()
	names := make([]string, len(h.order))
	copy(names, h.order)
	h.mu.RUnlock()

	for i := len(names) - 1; i >= 0; i-- {
		if err := h.Unload(ctx, names[i]); err != nil {
			h.log.Warn("plugin unload failed", "plugin", names[i], "error", err)
		}
	}
}

// chainLink adapts one loaded plugin into the dispatcher's interceptor
// interface, applying the manifest filter first.
type chainLink struct {
	name   string
	plugin *loadedPlugin
}

func (l *chainLink) Name() string { return l.name }

func (l *chainLink) Intercept(env *protocol.Envelope, dc *dispatch.Context) (bool, error) {
	if !l.plugin.filter.matches(env) {
		return false, nil
	}
	return l.plugin.handler.HandleMessage(env, dc)
}
