package server

import (
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/hubso/realtime/src/gateway"
)

// websocketHandler returns the raw fasthttp handler for the /ws path.
// The credential is checked before the upgrade: a rejected connection
// never reaches the session layer and dispatches nothing.
func (s *Server) websocketHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := handshakeToken(ctx)
		if _, err := s.verifier.Verify(token); err != nil {
			s.logger.Warn().Err(err).Msg("handshake rejected")
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"error":"unauthorized"}`)
			return
		}

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			sess := gateway.New(&wsConn{conn}, s.verifier, s.registry, s.store, s.root)
			if err := sess.Authenticate(token); err != nil {
				return
			}
			sess.Activate()
			go sess.WritePump()
			sess.ReadPump()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// handshakeToken extracts the credential from the ?token query
// parameter or the Authorization header.
func handshakeToken(ctx *fasthttp.RequestCtx) string {
	if token := string(ctx.QueryArgs().Peek("token")); token != "" {
		return token
	}
	header := string(ctx.Request.Header.Peek("Authorization"))
	return strings.TrimPrefix(header, "Bearer ")
}

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) ReadJSON(v any) error  { return w.conn.ReadJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }
