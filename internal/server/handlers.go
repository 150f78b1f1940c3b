// Package server exposes admin HTTP handlers, including the WebSocket gateway
// that carries the line protocol for browser clients.
package server

import (
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type adminHandlers struct {
	server *Server
}

// health reports that the server process is up.
func (h *adminHandlers) health(c echo.Context) error {
	return c.String(http.StatusOK, "Tempest server is running!")
}

func (h *adminHandlers) rooms(c echo.Context) error {
	return c.JSON(http.StatusOK, h.server.hub.Rooms())
}

func (h *adminHandlers) room(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid room name")
	}
	for _, info := range h.server.hub.Rooms() {
		if info.Name == name {
			return c.JSON(http.StatusOK, info)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "room not found")
}

func (h *adminHandlers) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.server.Stats())
}

// websocket upgrades the request and serves the line protocol over it until
// the session ends. Each frame is one line in either direction.
func (h *adminHandlers) websocket(c echo.Context) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.server.origins.check,
	}

	// Upgrade has already written the error response on failure.
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.server.logger.Debug("websocket upgrade failed", "err", err)
		return nil
	}

	h.server.handlers.Add(1)
	defer h.server.handlers.Done()
	h.server.serve(newWSTransport(conn, c.Request().RemoteAddr))
	return nil
}
