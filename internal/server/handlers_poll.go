package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
)

type createPollRequest struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	IsMultipleChoice bool     `json:"is_multiple_choice"`
}

type togglePollStatusRequest struct {
	IsActive *bool `json:"isactive"`
}

func (s *Server) handleAllPollsSummary(c echo.Context) error {
	summaries, err := s.app.ListPollSummaries(c.Request().Context())
	if err != nil {
		return translate(err, "failed to fetch polls")
	}

	if err := c.JSON(http.StatusOK, summaries); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	pollID := c.Param("poll_id")

	poll, err := s.app.GetPoll(c.Request().Context(), pollID)
	if err != nil {
		return translate(err, "failed to retrieve poll").WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePollsByUser(c echo.Context) error {
	userID := c.Param("user_id")

	polls, err := s.app.ListPollsByUser(c.Request().Context(), userID)
	if err != nil {
		return translate(err, "failed to retrieve polls").WithField("user_id", userID)
	}

	if err := c.JSON(http.StatusOK, polls); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req createPollRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	poll, err := s.app.CreatePoll(c.Request().Context(), userID, req.Question, req.Options, req.IsMultipleChoice)
	if err != nil {
		return translate(err, "failed to create poll")
	}

	if err := c.JSON(http.StatusCreated, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleTogglePollStatus(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	pollID := c.Param("poll_id")

	var req togglePollStatusRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.IsActive == nil {
		return apperrors.ValidationError("isactive is required")
	}

	if err := s.app.SetPollStatus(c.Request().Context(), userID, pollID, *req.IsActive); err != nil {
		return translate(err, "failed to update poll status").WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"message": "Poll status updated successfully"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handlePollResults returns the raw aggregation: options without votes are omitted,
// unlike the VoteUpdate frames pushed over /ws, which carry every option.
func (s *Server) handlePollResults(c echo.Context) error {
	pollID := c.Param("poll_id")

	results, err := s.app.PollResults(c.Request().Context(), pollID)
	if err != nil {
		return translate(err, "failed to retrieve poll results").WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, results); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleViewers(c echo.Context) error {
	pollID := c.Param("poll_id")

	response := map[string]any{
		"poll_id": pollID,
		"viewers": s.fanout.SubscriberCount(pollID),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
