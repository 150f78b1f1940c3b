// Package server wires admin handlers into the Echo router.
package server

import "github.com/labstack/echo/v4"

// registerRoutes sets up health, room snapshot, stats and WebSocket routes.
func registerRoutes(e *echo.Echo, s *Server) {
	h := &adminHandlers{server: s}
	e.GET("/health", h.health)
	e.GET("/api/rooms", h.rooms)
	e.GET("/api/rooms/:name", h.room)
	e.GET("/api/stats", h.stats)
	e.GET("/ws", h.websocket)
}
