package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
)

type voteRequest struct {
	PollID    string   `json:"poll_id"`
	OptionIDs []string `json:"option_ids"`
}

func (s *Server) handleVote(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req voteRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	if err := s.app.SubmitVote(c.Request().Context(), userID, req.PollID, req.OptionIDs); err != nil {
		return translate(err, "failed to submit vote").WithField("poll_id", req.PollID)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"message": "Vote submitted successfully"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleMyVotes(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	polls, err := s.app.ListVotedPolls(c.Request().Context(), userID)
	if err != nil {
		return translate(err, "failed to retrieve votes")
	}

	if err := c.JSON(http.StatusOK, polls); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetVote(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	pollID := c.Param("poll_id")

	if c.Param("user_id") != userID {
		return apperrors.ForbiddenError("votes of other users are private").WithField("poll_id", pollID)
	}

	vote, err := s.app.GetVote(c.Request().Context(), pollID, userID)
	if err != nil {
		return translate(err, "failed to retrieve vote").WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, vote); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleResetVotes(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	pollID := c.Param("poll_id")

	if err := s.app.ResetVotes(c.Request().Context(), userID, pollID); err != nil {
		return translate(err, "failed to reset votes").WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"message": "Votes reset successfully"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
