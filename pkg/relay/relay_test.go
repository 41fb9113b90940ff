package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoute_Validation(t *testing.T) {
	r := New(Options{})

	err := r.RegisterRoute(RouteConfig{Name: "api"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRouteConfig))

	err = r.RegisterRoute(RouteConfig{BaseURL: "http://upstream"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRouteConfig))

	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "api", BaseURL: "http://upstream"}))
	assert.Equal(t, []string{"api"}, r.Routes())
}

func TestForward_UnknownRoute(t *testing.T) {
	r := New(Options{})
	_, err := r.Forward(context.Background(), "ghost", "/x", http.MethodGet, nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownRoute), "got %v", err)
}

func TestForward_JSONRoundtrip(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotMethod = req.Method
		_ = json.NewDecoder(req.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7, "accepted": true}`))
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "jobs", BaseURL: srv.URL}))

	res, err := r.Forward(context.Background(), "jobs", "/v1/jobs", http.MethodPost,
		map[string]any{"priority": "high"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "/v1/jobs", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "high", gotBody["priority"])

	assert.Equal(t, http.StatusCreated, res.Status)
	body, ok := res.Body.(map[string]any)
	require.True(t, ok, "JSON body should decode to a map, got %T", res.Body)
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, true, body["accepted"])
}

func TestForward_TextBodyStaysRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "api", BaseURL: srv.URL}))

	res, err := r.Forward(context.Background(), "api", "/ping", http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Body)
}

func TestForward_AliasResolution(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{
		Name:      "api",
		BaseURL:   srv.URL,
		Endpoints: map[string]string{"status": "/internal/v2/status"},
	}))

	_, err := r.Forward(context.Background(), "api", "status", http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/internal/v2/status", gotPath)

	// Unaliased endpoints pass through.
	_, err = r.Forward(context.Background(), "api", "/direct", http.MethodGet, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/direct", gotPath)
}

func TestForward_HeaderPrecedence(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = req.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{
		Name:    "api",
		BaseURL: srv.URL,
		Headers: map[string]string{
			"X-Tenant":  "default",
			"X-Static":  "route",
			"X-Refresh": "route",
		},
		BearerToken: "static-token",
		Auth: func(context.Context) (map[string]string, error) {
			return map[string]string{"X-Refresh": "auth"}, nil
		},
	}))

	_, err := r.Forward(context.Background(), "api", "/x", http.MethodGet, nil,
		map[string]string{"X-Tenant": "acme"})
	require.NoError(t, err)

	assert.Equal(t, "acme", got.Get("X-Tenant"), "caller extras beat route defaults")
	assert.Equal(t, "route", got.Get("X-Static"))
	assert.Equal(t, "auth", got.Get("X-Refresh"), "auth callback wins")
	assert.Equal(t, "Bearer static-token", got.Get("Authorization"))
}

func TestForward_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not reach upstream when auth fails")
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{
		Name:    "api",
		BaseURL: srv.URL,
		Auth: func(context.Context) (map[string]string, error) {
			return nil, errors.New("token refresh failed")
		},
	}))

	_, err := r.Forward(context.Background(), "api", "/x", http.MethodGet, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token refresh failed")
}

func TestForward_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream is sad"))
	}))
	defer srv.Close()

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "api", BaseURL: srv.URL}))

	_, err := r.Forward(context.Background(), "api", "/x", http.MethodGet, nil, nil)
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream), "got %T: %v", err, err)
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "upstream is sad", upstream.Body)
}

func TestForward_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{
		Name:    "slow",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	}))

	start := time.Now()
	_, err := r.Forward(context.Background(), "slow", "/x", http.MethodGet, nil, nil)
	require.Error(t, err)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout), "got %T: %v", err, err)
	assert.Equal(t, "slow", timeout.Route)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestForward_NetworkError(t *testing.T) {
	r := New(Options{})
	// Port 1 is near-certainly closed.
	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "down", BaseURL: "http://127.0.0.1:1"}))

	_, err := r.Forward(context.Background(), "down", "/x", http.MethodGet, nil, nil)
	require.Error(t, err)

	var network *NetworkError
	assert.True(t, errors.As(err, &network), "got %T: %v", err, err)
}

func TestUnregisterRoute(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.RegisterRoute(RouteConfig{Name: "api", BaseURL: "http://upstream"}))
	r.UnregisterRoute("api")
	r.UnregisterRoute("api") // no-op

	_, err := r.Forward(context.Background(), "api", "/x", http.MethodGet, nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownRoute))
}
