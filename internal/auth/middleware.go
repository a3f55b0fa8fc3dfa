package auth

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
)

const (
	userIDKey    = "userID"
	bearerPrefix = "Bearer "
)

// RequireAuth rejects requests without a valid bearer token and stores the
// token subject on the echo context.
func RequireAuth(issuer *Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperrors.UnauthorizedError("missing bearer token")
			}

			userID, err := issuer.Verify(token)
			if err != nil {
				slog.Debug("Bearer token rejected", "path", c.Path(), "error", err)
				return apperrors.UnauthorizedError("invalid or expired token").WithCause(err)
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c echo.Context) (string, bool) {
	userID, ok := c.Get(userIDKey).(string)
	return userID, ok && userID != ""
}

func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
