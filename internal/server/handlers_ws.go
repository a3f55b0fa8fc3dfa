package server

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/shanmukh0504/polling-application-cicd/internal/broadcast"
)

// handleWebSocket upgrades the request and hands the connection to the fanout.
// The handler stays on the request until the subscriber ends so the connection
// slot taken by the limits middleware is held for the connection's lifetime.
func (s *Server) handleWebSocket(c echo.Context) error {
	pollID := c.Param("poll_id")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Debug("WebSocket upgrade failed", "poll_id", pollID, "error", err)
		return nil
	}

	sub, err := s.fanout.Subscribe(pollID, conn)
	if errors.Is(err, broadcast.ErrStopped) {
		slog.Info("WebSocket refused during shutdown", "poll_id", pollID)
		return nil
	}
	if err != nil {
		slog.Error("Failed to subscribe viewer", "poll_id", pollID, "error", err)
		_ = conn.Close()
		return nil
	}

	<-sub.Done()
	return nil
}
