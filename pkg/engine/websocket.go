package engine

import (
	"context"
	"errors"
	"net"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/neel-jay/claudeUIMCP/pkg/connection"
)

// maxMessageSize bounds a single inbound frame.
const maxMessageSize = 1 << 20

// wsTransport adapts a coder/websocket connection to the registry's
// transport interface.
type wsTransport struct {
	conn *ws.Conn
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, ws.MessageText, data)
}

func (t *wsTransport) Close(code int, reason string) error {
	return t.conn.Close(ws.StatusCode(code), reason)
}

// handleUpgrade accepts a WebSocket connection and hands it to the
// registry. A full registry has already answered the client by the
// time Add returns, so rejection needs no further writes here.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsConn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    ws.CompressionDisabled,
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	wsConn.SetReadLimit(maxMessageSize)

	peer := connection.PeerInfo{
		IPAddress: remoteIP(r),
		UserAgent: r.UserAgent(),
	}
	conn, err := s.registry.Add(&wsTransport{conn: wsConn}, peer)
	if err != nil {
		return
	}

	go s.readLoop(conn, wsConn)
}

// readLoop reads frames until the connection dies, dispatching each
// one synchronously so a connection's messages are processed in order.
func (s *Server) readLoop(conn *connection.Connection, wsConn *ws.Conn) {
	reason := connection.ReasonTransportError
	defer func() {
		s.registry.Remove(conn.ID(), reason)
	}()

	ctx := conn.Context()
	for {
		_, data, err := wsConn.Read(ctx)
		if err != nil {
			switch {
			case ws.CloseStatus(err) == ws.StatusNormalClosure,
				ws.CloseStatus(err) == ws.StatusGoingAway:
				reason = connection.ReasonClientClose
			case errors.Is(err, context.Canceled):
				// Removed by the registry; reason already reported.
				reason = connection.ReasonDisconnect
			default:
				s.log.Debug("read failed", "connId", conn.ID(), "error", err)
			}
			return
		}
		s.dispatcher.Dispatch(conn, data)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
