package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/connection"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// fakeTransport captures outbound frames for assertions.
type fakeTransport struct {
	mu     sync.Mutex
	frames []*protocol.Envelope
	closed bool
}

func (t *fakeTransport) Write(_ context.Context, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	t.mu.Lock()
	t.frames = append(t.frames, &env)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close(int, string) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) last() *protocol.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

// scriptedPlugin is a chain link with a programmable hook.
type scriptedPlugin struct {
	name    string
	handle  func(env *protocol.Envelope, dc *Context) (bool, error)
	calls   int
	lastEnv *protocol.Envelope
}

func (p *scriptedPlugin) Name() string { return p.name }

func (p *scriptedPlugin) Intercept(env *protocol.Envelope, dc *Context) (bool, error) {
	p.calls++
	p.lastEnv = env
	if p.handle == nil {
		return false, nil
	}
	return p.handle(env, dc)
}

// staticChain is an InterceptorSource over a fixed slice.
type staticChain []Interceptor

func (c staticChain) Interceptors() []Interceptor { return c }

// countingObserver tallies outcomes.
type countingObserver struct {
	mu       sync.Mutex
	outcomes map[Outcome]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: make(map[Outcome]int)}
}

func (o *countingObserver) MessageDispatched(outcome Outcome, _ string) {
	o.mu.Lock()
	o.outcomes[outcome]++
	o.mu.Unlock()
}

func (o *countingObserver) count(outcome Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

type fixture struct {
	registry   *connection.Registry
	handlers   *HandlerRegistry
	dispatcher *Dispatcher
	observer   *countingObserver
	transport  *fakeTransport
	conn       *connection.Connection
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()

	f := &fixture{
		registry:  connection.NewRegistry(connection.Options{}),
		handlers:  NewHandlerRegistry(nil),
		observer:  newCountingObserver(),
		transport: &fakeTransport{},
	}
	deps.Registry = f.registry
	deps.Handlers = f.handlers
	deps.Observer = f.observer
	f.dispatcher = NewDispatcher(deps)

	conn, err := f.registry.Add(f.transport, connection.PeerInfo{IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	f.conn = conn
	return f
}

func (f *fixture) send(t *testing.T, raw string) {
	t.Helper()
	f.dispatcher.Dispatch(f.conn, []byte(raw))
}

func TestDispatch_MalformedNeverRouted(t *testing.T) {
	plugin := &scriptedPlugin{name: "spy"}
	f := newFixture(t, Deps{Plugins: staticChain{plugin}})

	handlerCalls := 0
	f.handlers.Register("echo", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		handlerCalls++
		return nil, nil
	})

	for _, raw := range []string{
		`{"data":{}}`,       // missing type
		`"not an object"`,   // not an object
		`{"type":`,          // invalid JSON
	} {
		f.send(t, raw)
	}

	if plugin.calls != 0 {
		t.Errorf("plugin invoked %d times for malformed input", plugin.calls)
	}
	if handlerCalls != 0 {
		t.Errorf("handler invoked %d times for malformed input", handlerCalls)
	}
	if f.observer.count(OutcomeMalformed) != 3 {
		t.Errorf("expected 3 malformed outcomes, got %d", f.observer.count(OutcomeMalformed))
	}

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error reply, got %v", env)
	}
	if code, _ := env.Data["code"].(float64); int(code) != protocol.CodeInvalidMessage {
		t.Errorf("expected code %d, got %v", protocol.CodeInvalidMessage, env.Data["code"])
	}
}

func TestDispatch_AuthGate(t *testing.T) {
	plugin := &scriptedPlugin{name: "spy"}
	f := newFixture(t, Deps{
		Plugins: staticChain{plugin},
		Auth:    NewAuthenticator(true, "sekrit", time.Hour),
	})

	f.send(t, `{"type":"echo","data":{"msg":"hi"}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error, got %v", env)
	}
	if code, _ := env.Data["code"].(float64); int(code) != protocol.CodeUnauthorized {
		t.Errorf("expected code %d, got %v", protocol.CodeUnauthorized, env.Data["code"])
	}
	if plugin.calls != 0 {
		t.Error("dispatch chain must not run for gated messages")
	}
	if f.observer.count(OutcomeUnauthorized) != 1 {
		t.Errorf("expected 1 unauthorized outcome, got %d", f.observer.count(OutcomeUnauthorized))
	}
}

func TestDispatch_AuthSuccess(t *testing.T) {
	f := newFixture(t, Deps{Auth: NewAuthenticator(true, "sekrit", time.Hour)})

	f.send(t, `{"type":"system.auth","data":{"token":"sekrit"}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeAuthResponse {
		t.Fatalf("expected auth_response, got %v", env)
	}
	if env.Data["success"] != true {
		t.Fatalf("expected success, got %v", env.Data)
	}
	if exp, _ := env.Data["expiresAt"].(float64); exp <= float64(time.Now().UnixMilli()) {
		t.Errorf("expiresAt should be in the future: %v", env.Data["expiresAt"])
	}
	if !f.conn.Authenticated() {
		t.Error("connection should be authenticated")
	}

	// Subsequent non-auth traffic now passes the gate.
	f.handlers.Register("echo", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		return protocol.NewEnvelope("echo.response", nil), nil
	})
	f.send(t, `{"type":"echo"}`)
	if got := f.transport.last(); got == nil || got.Type != "echo.response" {
		t.Errorf("expected echo.response after auth, got %v", got)
	}
}

func TestDispatch_AuthFailure(t *testing.T) {
	f := newFixture(t, Deps{Auth: NewAuthenticator(true, "sekrit", time.Hour)})

	f.send(t, `{"type":"system.auth","data":{"token":"wrong"}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeAuthResponse {
		t.Fatalf("expected auth_response, got %v", env)
	}
	if env.Data["success"] != false {
		t.Errorf("expected failure, got %v", env.Data)
	}
	if f.conn.Authenticated() {
		t.Error("failed auth must not authenticate the connection")
	}
}

func TestDispatch_AuthOptional(t *testing.T) {
	f := newFixture(t, Deps{Auth: NewAuthenticator(false, "", time.Hour)})

	f.send(t, `{"type":"system.auth","data":{}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeAuthResponse {
		t.Fatalf("expected auth_response, got %v", env)
	}
	if env.Data["success"] != true {
		t.Fatalf("expected success, got %v", env.Data)
	}
	if tok, _ := env.Data["sessionToken"].(string); tok == "" {
		t.Error("optional auth should still mint a session token")
	}
	if f.conn.Authenticated() {
		t.Error("ungated servers must not flip the authenticated flag")
	}
}

func TestDispatch_PingPong(t *testing.T) {
	f := newFixture(t, Deps{})

	f.send(t, `{"type":"system.ping","timestamp":1000,"data":{"seq":1}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypePong {
		t.Fatalf("expected pong, got %v", env)
	}
	echo, ok := env.Data["echo"].(map[string]any)
	if !ok || echo["seq"] != float64(1) {
		t.Errorf("ping data not echoed: %v", env.Data)
	}
	if ts, _ := env.Data["timestamp"].(float64); int64(ts) < 1000 {
		t.Errorf("pong timestamp should be >= ping timestamp, got %v", ts)
	}
}

func TestDispatch_RegisterMergesClientInfo(t *testing.T) {
	f := newFixture(t, Deps{})

	f.send(t, `{"type":"system.register","data":{"name":"dashboard","version":"2.1"}}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeRegisterResponse {
		t.Fatalf("expected register_response, got %v", env)
	}
	if env.Data["success"] != true {
		t.Errorf("expected success, got %v", env.Data)
	}
	info := f.conn.ClientInfo()
	if info["name"] != "dashboard" || info["version"] != "2.1" {
		t.Errorf("client info not merged: %v", info)
	}
}

func TestDispatch_UnknownSystemType(t *testing.T) {
	f := newFixture(t, Deps{})

	f.send(t, `{"type":"system.reboot"}`)

	if f.transport.count() != 0 {
		t.Errorf("unrecognized system types get no reply, got %v", f.transport.last())
	}
	if f.observer.count(OutcomeUnhandled) != 1 {
		t.Errorf("expected unhandled outcome, got %d", f.observer.count(OutcomeUnhandled))
	}
}

func TestDispatch_PluginShortCircuit(t *testing.T) {
	p1 := &scriptedPlugin{name: "first", handle: func(env *protocol.Envelope, dc *Context) (bool, error) {
		return env.Type == "jobs.run", nil
	}}
	p2 := &scriptedPlugin{name: "second"}
	f := newFixture(t, Deps{Plugins: staticChain{p1, p2}})

	handlerCalls := 0
	f.handlers.Register("jobs.run", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		handlerCalls++
		return nil, nil
	})

	f.send(t, `{"type":"jobs.run"}`)

	if p1.calls != 1 {
		t.Errorf("expected first plugin called once, got %d", p1.calls)
	}
	if p2.calls != 0 {
		t.Error("second plugin must not run after short-circuit")
	}
	if handlerCalls != 0 {
		t.Error("registered handler must not run after plugin handled the message")
	}
	if f.observer.count(OutcomePlugin) != 1 {
		t.Errorf("expected 1 plugin outcome, got %d", f.observer.count(OutcomePlugin))
	}
}

func TestDispatch_PluginOrder(t *testing.T) {
	var order []string
	mk := func(name string) *scriptedPlugin {
		return &scriptedPlugin{name: name, handle: func(*protocol.Envelope, *Context) (bool, error) {
			order = append(order, name)
			return false, nil
		}}
	}
	f := newFixture(t, Deps{Plugins: staticChain{mk("a"), mk("b"), mk("c")}})

	f.send(t, `{"type":"x.y"}`)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("plugins ran out of order: %v", order)
	}
}

func TestDispatch_PluginPanicBecomes500(t *testing.T) {
	boom := &scriptedPlugin{name: "boom", handle: func(*protocol.Envelope, *Context) (bool, error) {
		panic("plugin exploded")
	}}
	f := newFixture(t, Deps{Plugins: staticChain{boom}})

	f.send(t, `{"type":"x.y"}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error, got %v", env)
	}
	if code, _ := env.Data["code"].(float64); int(code) != protocol.CodeServerError {
		t.Errorf("expected code %d, got %v", protocol.CodeServerError, env.Data["code"])
	}
	if f.conn.IsClosed() {
		t.Error("connection must survive a plugin fault")
	}
}

func TestDispatch_PluginErrorBecomes500(t *testing.T) {
	bad := &scriptedPlugin{name: "bad", handle: func(*protocol.Envelope, *Context) (bool, error) {
		return false, errors.New("hook failure")
	}}
	f := newFixture(t, Deps{Plugins: staticChain{bad}})

	f.send(t, `{"type":"x.y"}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error, got %v", env)
	}
	if f.observer.count(OutcomeFault) != 1 {
		t.Errorf("expected 1 fault outcome, got %d", f.observer.count(OutcomeFault))
	}
}

func TestDispatch_ExactShadowsNamespace(t *testing.T) {
	f := newFixture(t, Deps{})

	var called string
	f.handlers.Register("tools", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		called = "namespace"
		return nil, nil
	})
	f.handlers.Register("tools.execute", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		called = "exact"
		return nil, nil
	})

	f.send(t, `{"type":"tools.execute"}`)
	if called != "exact" {
		t.Errorf("exact handler should shadow namespace handler, got %q", called)
	}

	f.send(t, `{"type":"tools.list"}`)
	if called != "namespace" {
		t.Errorf("namespace handler should catch unlisted types, got %q", called)
	}
}

func TestDispatch_HandlerPanicBecomes500(t *testing.T) {
	f := newFixture(t, Deps{})
	f.handlers.Register("danger", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		panic("handler exploded")
	})

	f.send(t, `{"type":"danger"}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error, got %v", env)
	}
	if code, _ := env.Data["code"].(float64); int(code) != protocol.CodeServerError {
		t.Errorf("expected code %d, got %v", protocol.CodeServerError, env.Data["code"])
	}
	if f.conn.IsClosed() {
		t.Error("connection must survive a handler fault")
	}
}

func TestDispatch_Unmatched404(t *testing.T) {
	f := newFixture(t, Deps{})

	f.send(t, `{"type":"nobody.home"}`)

	env := f.transport.last()
	if env == nil || env.Type != protocol.TypeError {
		t.Fatalf("expected system error, got %v", env)
	}
	if code, _ := env.Data["code"].(float64); int(code) != protocol.CodeNotFound {
		t.Errorf("expected code %d, got %v", protocol.CodeNotFound, env.Data["code"])
	}
	if f.observer.count(OutcomeUnhandled) != 1 {
		t.Errorf("expected 1 unhandled outcome, got %d", f.observer.count(OutcomeUnhandled))
	}
}

func TestHandlerRegistry_LastWriterWins(t *testing.T) {
	r := NewHandlerRegistry(nil)

	var called string
	r.Register("echo", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		called = "first"
		return nil, nil
	})
	r.Register("echo", func(dc *Context, env *protocol.Envelope) (*protocol.Envelope, error) {
		called = "second"
		return nil, nil
	})

	h, key := r.Lookup(&protocol.Envelope{Type: "echo"})
	if h == nil || key != "echo" {
		t.Fatalf("lookup failed: key=%q", key)
	}
	_, _ = h(nil, nil)
	if called != "second" {
		t.Errorf("expected last registration to win, got %q", called)
	}
}

func TestDispatch_InboundCountsActivity(t *testing.T) {
	f := newFixture(t, Deps{})
	before := f.conn.LastActivityAt()

	time.Sleep(2 * time.Millisecond)
	f.send(t, `{"type":"system.ping"}`)

	if !f.conn.LastActivityAt().After(before) {
		t.Error("inbound traffic should refresh activity")
	}
	if f.conn.Stats().Received != 1 {
		t.Errorf("expected received=1, got %d", f.conn.Stats().Received)
	}
}
