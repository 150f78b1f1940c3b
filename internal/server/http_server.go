// Package server constructs and runs the Echo admin API that exposes health,
// room and occupancy endpoints alongside the WebSocket gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func newAdminAPI(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Server.ReadHeaderTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	registerRoutes(e, s)
	return e
}

// AdminHandler returns the admin API as an http.Handler.
func (s *Server) AdminHandler() http.Handler {
	return s.admin
}

// runAdmin starts the admin API and blocks until ctx is canceled or the
// listener fails.
func (s *Server) runAdmin(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin api listening", "addr", addr)
		err := s.admin.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin api: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.admin.Shutdown(shutCtx); err != nil {
			s.logger.Warn("admin api shutdown", "err", err)
			return err
		}
		s.logger.Info("admin api shutdown completed")
		return nil
	}
}
