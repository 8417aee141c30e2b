// Package server exposes the gateway's HTTP surface: the WebSocket
// upgrade endpoint, the presence REST routes consumed by dashboards,
// and an info route.
package server

import (
	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/hubso/realtime/src/auth"
	"github.com/hubso/realtime/src/presence"
	"github.com/hubso/realtime/src/rooms"
)

// Server wires the room registry, presence store, and authenticator
// behind one fasthttp handler.
type Server struct {
	app      *fiber.App
	registry *rooms.Registry
	store    presence.Store
	verifier auth.Verifier
	logger   zerolog.Logger
	root     zerolog.Logger // undecorated, handed to sessions
	upgrader websocket.FastHTTPUpgrader
}

// Options configures the HTTP surface.
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// New builds the server and registers its routes.
func New(registry *rooms.Registry, store presence.Store, verifier auth.Verifier, opts Options, logger zerolog.Logger) *Server {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 1024
	}
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = 1024
	}

	s := &Server{
		app:      fiber.New(),
		registry: registry,
		store:    store,
		verifier: verifier,
		logger:   logger.With().Str("component", "server").Logger(),
		root:     logger,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
		},
	}
	s.registerRoutes()
	return s
}

// App returns the underlying fiber app, used in route tests.
func (s *Server) App() *fiber.App { return s.app }

// Handler returns the combined fasthttp handler. The WebSocket upgrade
// lives at the fasthttp level since Fiber v3 does not expose
// *fasthttp.RequestCtx to its handlers; everything else goes to Fiber.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	wsHandler := s.websocketHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}
}
