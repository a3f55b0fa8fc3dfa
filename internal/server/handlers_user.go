package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	token, err := s.app.Login(c.Request().Context(), req.UserID, req.Name)
	if err != nil {
		return translate(err, "failed to log in").WithField("user_id", req.UserID)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"token": token}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetUserID(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]string{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
