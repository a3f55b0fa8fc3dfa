package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/shanmukh0504/polling-application-cicd/internal/auth"
	"github.com/shanmukh0504/polling-application-cicd/internal/broadcast"
	"github.com/shanmukh0504/polling-application-cicd/internal/config"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
)

type appService interface {
	Login(ctx context.Context, userID, name string) (string, error)
	CreatePoll(ctx context.Context, creator, question string, options []string, multipleChoice bool) (*domain.Poll, error)
	GetPoll(ctx context.Context, pollID string) (*domain.Poll, error)
	ListPollSummaries(ctx context.Context) ([]domain.PollSummary, error)
	ListPollsByUser(ctx context.Context, userID string) ([]domain.Poll, error)
	SubmitVote(ctx context.Context, userID, pollID string, optionIDs []string) error
	GetVote(ctx context.Context, pollID, userID string) (*domain.Vote, error)
	ListVotedPolls(ctx context.Context, userID string) ([]domain.Poll, error)
	SetPollStatus(ctx context.Context, userID, pollID string, active bool) error
	ResetVotes(ctx context.Context, userID, pollID string) error
	PollResults(ctx context.Context, pollID string) ([]domain.OptionCount, error)
}

// fanout is the real-time side of the server: viewers subscribe per poll.
type fanout interface {
	Subscribe(pollID string, conn broadcast.Conn) (*broadcast.Subscriber, error)
	SubscriberCount(pollID string) int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app      appService
	fanout   fanout
	issuer   *auth.Issuer
	limits   *ConnectionLimits
	upgrader websocket.Upgrader

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, fanout fanout, issuer *auth.Issuer, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		app:    app,
		fanout: fanout,
		issuer: issuer,
		limits: NewConnectionLimits(
			cfg.MaxWebSocketConnections,
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRatePerSecond,
			cfg.ConnectionRateBurst,
			clock,
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.Origin, !cfg.IsProduction()),
		},
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
