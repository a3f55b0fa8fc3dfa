package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shanmukh0504/polling-application-cicd/internal/auth"
	"github.com/shanmukh0504/polling-application-cicd/internal/correlation"
	apperrors "github.com/shanmukh0504/polling-application-cicd/internal/errors"
)

const corsMaxAgeSeconds = 3600

func (s *Server) registerRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlation.Middleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(s.setupCORSMiddleware())
	s.echo.Use(apperrors.Middleware())

	requireAuth := auth.RequireAuth(s.issuer)

	s.registerHealthRoutes()
	s.registerUserRoutes(requireAuth)
	s.registerPollRoutes(requireAuth)
	s.registerVoteRoutes(requireAuth)
	s.registerWebSocketRoutes()
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) registerUserRoutes(requireAuth echo.MiddlewareFunc) {
	s.echo.POST("/api/login", s.handleLogin)
	s.echo.GET("/api/get_user_id", s.handleGetUserID, requireAuth)
}

func (s *Server) registerPollRoutes(requireAuth echo.MiddlewareFunc) {
	s.echo.GET("/api/all_polls_summary", s.handleAllPollsSummary)
	s.echo.GET("/api/polls/user/:user_id", s.handlePollsByUser)
	s.echo.GET("/api/polls/:poll_id", s.handleGetPoll)
	s.echo.GET("/api/polls/:poll_id/viewers", s.handleViewers)
	s.echo.GET("/api/poll_results/:poll_id", s.handlePollResults)
	s.echo.POST("/api/create_polls", s.handleCreatePoll, requireAuth)
	s.echo.PUT("/api/toggle_poll_status/:poll_id", s.handleTogglePollStatus, requireAuth)
}

func (s *Server) registerVoteRoutes(requireAuth echo.MiddlewareFunc) {
	s.echo.POST("/api/vote", s.handleVote, requireAuth)
	s.echo.GET("/api/my_votes", s.handleMyVotes, requireAuth)
	s.echo.GET("/api/votes/:poll_id/:user_id", s.handleGetVote, requireAuth)
	s.echo.DELETE("/api/reset_votes/:poll_id", s.handleResetVotes, requireAuth)
}

func (s *Server) registerWebSocketRoutes() {
	s.echo.GET("/ws/:poll_id", s.handleWebSocket, s.limits.Middleware())
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health/live"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

func (s *Server) setupCORSMiddleware() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.config.Origin},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, correlation.HeaderRequestID},
		ExposeHeaders:    []string{correlation.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeSeconds,
	})
}
