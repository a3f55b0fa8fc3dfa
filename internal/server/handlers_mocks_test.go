package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/shanmukh0504/polling-application-cicd/internal/auth"
	"github.com/shanmukh0504/polling-application-cicd/internal/broadcast"
	"github.com/shanmukh0504/polling-application-cicd/internal/config"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	loginFn             func(ctx context.Context, userID, name string) (string, error)
	createPollFn        func(ctx context.Context, creator, question string, options []string, multipleChoice bool) (*domain.Poll, error)
	getPollFn           func(ctx context.Context, pollID string) (*domain.Poll, error)
	listPollSummariesFn func(ctx context.Context) ([]domain.PollSummary, error)
	listPollsByUserFn   func(ctx context.Context, userID string) ([]domain.Poll, error)
	submitVoteFn        func(ctx context.Context, userID, pollID string, optionIDs []string) error
	getVoteFn           func(ctx context.Context, pollID, userID string) (*domain.Vote, error)
	listVotedPollsFn    func(ctx context.Context, userID string) ([]domain.Poll, error)
	setPollStatusFn     func(ctx context.Context, userID, pollID string, active bool) error
	resetVotesFn        func(ctx context.Context, userID, pollID string) error
	pollResultsFn       func(ctx context.Context, pollID string) ([]domain.OptionCount, error)
}

func (m *mockAppService) Login(ctx context.Context, userID, name string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, userID, name)
	}
	return "", errors.New("not implemented")
}

func (m *mockAppService) CreatePoll(ctx context.Context, creator, question string, options []string, multipleChoice bool) (*domain.Poll, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, creator, question, options, multipleChoice)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return nil, domain.ErrPollNotFound
}

func (m *mockAppService) ListPollSummaries(ctx context.Context) ([]domain.PollSummary, error) {
	if m.listPollSummariesFn != nil {
		return m.listPollSummariesFn(ctx)
	}
	return []domain.PollSummary{}, nil
}

func (m *mockAppService) ListPollsByUser(ctx context.Context, userID string) ([]domain.Poll, error) {
	if m.listPollsByUserFn != nil {
		return m.listPollsByUserFn(ctx, userID)
	}
	return []domain.Poll{}, nil
}

func (m *mockAppService) SubmitVote(ctx context.Context, userID, pollID string, optionIDs []string) error {
	if m.submitVoteFn != nil {
		return m.submitVoteFn(ctx, userID, pollID, optionIDs)
	}
	return nil
}

func (m *mockAppService) GetVote(ctx context.Context, pollID, userID string) (*domain.Vote, error) {
	if m.getVoteFn != nil {
		return m.getVoteFn(ctx, pollID, userID)
	}
	return nil, domain.ErrVoteNotFound
}

func (m *mockAppService) ListVotedPolls(ctx context.Context, userID string) ([]domain.Poll, error) {
	if m.listVotedPollsFn != nil {
		return m.listVotedPollsFn(ctx, userID)
	}
	return []domain.Poll{}, nil
}

func (m *mockAppService) SetPollStatus(ctx context.Context, userID, pollID string, active bool) error {
	if m.setPollStatusFn != nil {
		return m.setPollStatusFn(ctx, userID, pollID, active)
	}
	return nil
}

func (m *mockAppService) ResetVotes(ctx context.Context, userID, pollID string) error {
	if m.resetVotesFn != nil {
		return m.resetVotesFn(ctx, userID, pollID)
	}
	return nil
}

func (m *mockAppService) PollResults(ctx context.Context, pollID string) ([]domain.OptionCount, error) {
	if m.pollResultsFn != nil {
		return m.pollResultsFn(ctx, pollID)
	}
	return []domain.OptionCount{}, nil
}

type stubFanout struct {
	counts map[string]int
}

func (f *stubFanout) Subscribe(string, broadcast.Conn) (*broadcast.Subscriber, error) {
	return nil, broadcast.ErrStopped
}

func (f *stubFanout) SubscriberCount(pollID string) int {
	return f.counts[pollID]
}

// --- Helpers ---

const testOrigin = "http://localhost:5173"

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		Origin:                  testOrigin,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerSecond: 100,
		ConnectionRateBurst:     100,
	}
}

type testServer struct {
	*Server
	issuer *auth.Issuer
}

func newTestServer(t *testing.T, app appService) *testServer {
	t.Helper()
	return newTestServerWith(t, testConfig(), app, &stubFanout{}, nil)
}

func newTestServerWith(t *testing.T, cfg *config.Config, app appService, fan fanout, checks []HealthCheck) *testServer {
	t.Helper()
	clock := clockwork.NewRealClock()
	issuer := auth.NewIssuer("server-test-secret-123", time.Hour, clock)
	return &testServer{
		Server: NewServer(cfg, app, fan, issuer, checks, clock),
		issuer: issuer,
	}
}

// do sends a request through the full middleware chain. A non-empty userID
// is turned into a bearer token.
func (ts *testServer) do(t *testing.T, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		token, err := ts.issuer.Issue(userID)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func newPreflight(origin string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodOptions, "/api/vote", nil)
	req.Header.Set(echo.HeaderOrigin, origin)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	return req, httptest.NewRecorder()
}
