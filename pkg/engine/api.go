package engine

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neel-jay/claudeUIMCP/pkg/httputil"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
)

// router builds the HTTP surface: the WebSocket endpoint plus the
// management side channel.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.handleUpgrade)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/version", s.handleVersion)
		r.Get("/connections", s.handleConnections)
		r.Get("/plugins", s.handlePlugins)
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteNotFound(w, "not_found", "unknown endpoint")
	})
	return r
}

// requireSession gates the management API behind a session token minted
// over the socket. Open servers pass everything through.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !s.auth.Required() {
			next.ServeHTTP(w, req)
			return
		}
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == req.Header.Get("Authorization") {
			httputil.WriteUnauthorized(w, "unauthorized", "missing bearer token")
			return
		}
		if _, err := s.auth.ValidateSession(token); err != nil {
			httputil.WriteUnauthorized(w, "unauthorized", "invalid session token")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"status": "ok",
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"name":       ServerName,
		"version":    s.version,
		"apiVersion": protocol.Version,
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.registry.List()
	summaries := make([]map[string]any, 0, len(conns))
	for _, c := range conns {
		stats := c.Stats()
		summaries = append(summaries, map[string]any{
			"id":             c.ID(),
			"ipAddress":      c.IPAddress(),
			"userAgent":      c.UserAgent(),
			"connectedAt":    c.ConnectedAt().UTC().Format(time.RFC3339),
			"lastActivityAt": c.LastActivityAt().UTC().Format(time.RFC3339),
			"authenticated":  c.Authenticated(),
			"clientInfo":     c.ClientInfo(),
			"stats":          stats,
		})
	}
	httputil.WriteOK(w, map[string]any{
		"connections": summaries,
		"count":       len(summaries),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	records := s.plugins.Records()
	httputil.WriteOK(w, map[string]any{
		"plugins": records,
		"count":   len(records),
	})
}
