package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/logging"
)

// DefaultTimeout bounds upstream calls when a route sets none.
const DefaultTimeout = 30 * time.Second

// AuthFunc supplies per-request auth headers, e.g. a refreshed token.
// Its headers win over route defaults and caller extras.
type AuthFunc func(ctx context.Context) (map[string]string, error)

// RouteConfig describes one upstream target.
type RouteConfig struct {
	// Name identifies the route. Registering an existing name replaces it.
	Name string
	// BaseURL is the upstream prefix, e.g. "https://api.internal:9000".
	BaseURL string
	// Endpoints maps short aliases to concrete paths. Unaliased
	// endpoints pass through as-is.
	Endpoints map[string]string
	// Headers are defaults attached to every request on this route.
	Headers map[string]string
	// BearerToken, when set, becomes an Authorization header.
	BearerToken string
	// Auth, when set, is consulted per request and overrides everything.
	Auth AuthFunc
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is a successful upstream response.
type Result struct {
	// Status is the upstream HTTP status code.
	Status int `json:"status"`
	// Headers are the upstream response headers, first value each.
	Headers map[string]string `json:"headers,omitempty"`
	// Body is the decoded JSON body when the upstream sent JSON,
	// otherwise the raw body as a string.
	Body any `json:"body,omitempty"`
}

// Relay holds the route table and issues upstream requests.
type Relay struct {
	mu     sync.RWMutex
	routes map[string]*RouteConfig
	client *http.Client
	log    *slog.Logger
}

// Options configures a Relay. A nil Client gets a default with no
// global timeout; deadlines come from each route.
type Options struct {
	Client *http.Client
	Logger *slog.Logger
}

// New builds an empty Relay.
func New(opts Options) *Relay {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Relay{
		routes: make(map[string]*RouteConfig),
		client: opts.Client,
		log:    opts.Logger,
	}
}

// RegisterRoute adds or replaces a route.
func (r *Relay) RegisterRoute(cfg RouteConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRouteConfig)
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("%w: route %s has no baseUrl", ErrInvalidRouteConfig, cfg.Name)
	}
	r.mu.Lock()
	if _, exists := r.routes[cfg.Name]; exists {
		r.log.Debug("replacing relay route", "route", cfg.Name)
	}
	r.routes[cfg.Name] = &cfg
	r.mu.Unlock()
	return nil
}

// UnregisterRoute removes a route. Removing an unknown route is a no-op.
func (r *Relay) UnregisterRoute(name string) {
	r.mu.Lock()
	delete(r.routes, name)
	r.mu.Unlock()
}

// Routes lists registered route names.
func (r *Relay) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	return names
}

// Forward issues one upstream request on the named route. A non-nil
// body is sent as JSON. The returned Result carries the upstream
// response; errors are classified as timeout, network or upstream.
func (r *Relay) Forward(ctx context.Context, routeName, endpoint, method string, body any, extraHeaders map[string]string) (*Result, error) {
	r.mu.RLock()
	route, ok := r.routes[routeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, routeName)
	}

	path := endpoint
	if alias, ok := route.Endpoints[endpoint]; ok {
		path = alias
	}
	url := strings.TrimRight(route.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	if method == "" {
		method = http.MethodPost
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode relay body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	timeout := route.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := r.applyHeaders(ctx, req, route, extraHeaders); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			r.log.Warn("relay timeout", "route", routeName, "endpoint", endpoint, "after", time.Since(start))
			return nil, &TimeoutError{Route: routeName, Endpoint: endpoint}
		}
		r.log.Warn("relay network error", "route", routeName, "error", err)
		return nil, &NetworkError{Route: routeName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &NetworkError{Route: routeName, Err: err}
	}

	r.log.Debug("relay call",
		"route", routeName,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Route: routeName, Status: resp.StatusCode, Body: string(raw)}
	}

	return &Result{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
		Body:    decodeBody(raw, resp.Header.Get("Content-Type")),
	}, nil
}

// applyHeaders merges headers with increasing precedence: route
// defaults, caller extras, bearer token, auth callback.
func (r *Relay) applyHeaders(ctx context.Context, req *http.Request, route *RouteConfig, extra map[string]string) error {
	for k, v := range route.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	if route.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+route.BearerToken)
	}
	if route.Auth != nil {
		authHeaders, err := route.Auth(ctx)
		if err != nil {
			return fmt.Errorf("relay auth for route %s: %w", route.Name, err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}
	return nil
}

func decodeBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") || looksLikeJSON(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func looksLikeJSON(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
