package server

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/shanmukh0504/polling-application-cicd/internal/auth"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
)

// translate maps a service error onto the structured error returned to clients.
// action names the failed operation for internal errors.
func translate(err error, action string) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		return apperrors.ValidationError("invalid id format")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidOption):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrPollNotFound):
		return apperrors.NotFoundError("poll not found")
	case errors.Is(err, domain.ErrVoteNotFound):
		return apperrors.NotFoundError("no vote found")
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NotFoundError("user not found")
	case errors.Is(err, domain.ErrPollInactive):
		return apperrors.ConflictError("poll is not active")
	case errors.Is(err, domain.ErrNotPollOwner):
		return apperrors.ForbiddenError("only the poll creator may do this")
	case errors.Is(err, domain.ErrRateLimited):
		return apperrors.RateLimitedError("too many votes, slow down")
	default:
		return apperrors.InternalError(action, err)
	}
}

func currentUser(c echo.Context) (string, error) {
	userID, ok := auth.UserID(c)
	if !ok {
		return "", apperrors.InternalError("missing user id in context", nil)
	}
	return userID, nil
}

func bindBody(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	return nil
}
