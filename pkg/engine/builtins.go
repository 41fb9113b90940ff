package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/neel-jay/claudeUIMCP/pkg/dispatch"
	"github.com/neel-jay/claudeUIMCP/pkg/protocol"
	"github.com/neel-jay/claudeUIMCP/pkg/relay"
)

// registerBuiltins installs the handlers every server ships with: the
// echo loopback and the proxy namespace bridging messages to relay
// routes. Both use the public registry, so embedders can override them.
func (s *Server) registerBuiltins() {
	s.handlers.Register("echo", s.handleEcho)
	s.handlers.Register("proxy", s.handleProxy)
}

// handleEcho answers any "echo" message with its own payload. It doubles
// as the connectivity check clients run after connecting.
func (s *Server) handleEcho(_ *dispatch.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	return protocol.NewEnvelope("echo.response", map[string]any{
		"echo":      env.Data,
		"timestamp": env.Timestamp,
	}), nil
}

// handleProxy forwards "proxy.<route>" messages to the named relay
// route. The payload selects the endpoint, method, body and extra
// headers; the upstream answer comes back as proxy.response.
func (s *Server) handleProxy(dc *dispatch.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	routeName := strings.TrimPrefix(env.Type, "proxy.")
	if routeName == "proxy" || routeName == "" {
		return protocol.NewSystemError(protocol.CodeInvalidType,
			"proxy messages must name a route, e.g. proxy.upstream", nil), nil
	}

	endpoint, _ := env.Data["endpoint"].(string)
	method, _ := env.Data["method"].(string)
	headers := stringMap(env.Data["headers"])
	body := env.Data["body"]

	ctx := context.Background()
	start := time.Now()
	result, err := s.relay.Forward(ctx, routeName, endpoint, method, body, headers)
	if err != nil {
		s.metrics.RelayCall(routeName, classifyRelayError(err), time.Since(start))

		var upstream *relay.UpstreamError
		switch {
		case errors.Is(err, relay.ErrUnknownRoute):
			return protocol.NewSystemError(protocol.CodeNotFound,
				"unknown proxy route", map[string]any{"route": routeName}), nil
		case errors.As(err, &upstream):
			// Upstream spoke HTTP; hand the client the verdict rather
			// than a server error.
			return protocol.NewEnvelope("proxy.response", map[string]any{
				"route":  routeName,
				"status": upstream.Status,
				"body":   upstream.Body,
			}), nil
		default:
			s.log.Warn("proxy forward failed", "route", routeName, "connId", dc.ConnectionID, "error", err)
			return protocol.NewSystemError(protocol.CodeServerError,
				"proxy request failed", map[string]any{
					"route": routeName,
					"error": err.Error(),
				}), nil
		}
	}
	s.metrics.RelayCall(routeName, "ok", time.Since(start))

	return protocol.NewEnvelope("proxy.response", map[string]any{
		"route":   routeName,
		"status":  result.Status,
		"headers": result.Headers,
		"body":    result.Body,
	}), nil
}

func classifyRelayError(err error) string {
	var timeout *relay.TimeoutError
	var network *relay.NetworkError
	var upstream *relay.UpstreamError
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &upstream):
		if upstream.Status >= http.StatusInternalServerError {
			return "upstream_5xx"
		}
		return "upstream_4xx"
	default:
		return "error"
	}
}

func stringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
