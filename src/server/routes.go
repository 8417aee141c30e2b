package server

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"
)

func (s *Server) registerRoutes() {
	s.app.Get("/presence", s.handlePresence)
	s.app.Get("/presence/me", s.handleMyPresence)
	s.app.Get("/presence/online", s.handleOnlineUsers)
	s.app.Get("/ws/info", s.handleInfo)
}

// handlePresence returns the online flag for each requested user id.
// GET /presence?ids=id1,id2 -> {"id1": true, "id2": false}
func (s *Server) handlePresence(c fiber.Ctx) error {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return c.JSON(s.store.GetPresence(context.Background(), ids))
}

// handleMyPresence reports the caller's own online status.
// GET /presence/me with a Bearer token.
func (s *Server) handleMyPresence(c fiber.Ctx) error {
	token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	identity, err := s.verifier.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.JSON(fiber.Map{
		"userId": identity.UserID,
		"online": s.store.IsOnline(context.Background(), identity.UserID),
	})
}

// handleOnlineUsers lists every user id with a live presence record.
func (s *Server) handleOnlineUsers(c fiber.Ctx) error {
	ids := s.store.ListOnlineUserIDs(context.Background())
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"userIds": ids})
}

// handleInfo exposes gateway counters for operational checks.
func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":   true,
		"endpoint":    "/ws",
		"connections": s.registry.ConnCount(),
		"rooms":       len(s.registry.Rooms()),
	})
}
