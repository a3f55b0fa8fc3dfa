package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/shanmukh0504/polling-application-cicd/internal/logging"
	"github.com/shanmukh0504/polling-application-cicd/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const unknownCreator = "Unknown"

// TokenIssuer mints the bearer token handed out at login.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Service orchestrates the poll use cases over the repositories and publishes
// real-time events after each successful mutation.
type Service struct {
	polls        domain.PollRepository
	votes        domain.VoteRepository
	users        domain.UserRepository
	events       domain.EventPublisher
	limiter      domain.VoteRateLimiter
	tokens       TokenIssuer
	resultsGroup singleflight.Group
}

// NewService creates the application layer service.
// limiter may be nil if vote rate limiting is not configured.
func NewService(polls domain.PollRepository, votes domain.VoteRepository, users domain.UserRepository, events domain.EventPublisher, limiter domain.VoteRateLimiter, tokens TokenIssuer) *Service {
	return &Service{
		polls:   polls,
		votes:   votes,
		users:   users,
		events:  events,
		limiter: limiter,
		tokens:  tokens,
	}
}

// Login records the user if it is new and returns a bearer token for it.
func (s *Service) Login(ctx context.Context, userID, name string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", invalidInput("user_id is required")
	}

	if err := s.users.StoreUser(ctx, domain.User{UserID: userID, Name: strings.TrimSpace(name)}); err != nil {
		return "", fmt.Errorf("store user: %w", err)
	}

	token, err := s.tokens.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// CreatePoll validates and stores a new, active poll owned by creator.
func (s *Service) CreatePoll(ctx context.Context, creator, question string, options []string, multipleChoice bool) (*domain.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, invalidInput("question is required")
	}

	texts := make([]string, 0, len(options))
	for _, option := range options {
		option = strings.TrimSpace(option)
		if option == "" {
			return nil, invalidInput("options must not be empty")
		}
		texts = append(texts, option)
	}
	if len(texts) < 2 {
		return nil, invalidInput("a poll needs at least two options")
	}

	poll, err := s.polls.CreatePoll(ctx, domain.NewPoll{
		Question:         question,
		Options:          texts,
		CreatedBy:        creator,
		IsMultipleChoice: multipleChoice,
	})
	if err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}

	logging.WithPoll(poll.ID).Info("Poll created", "user_id", creator, "options", len(poll.Options))
	return poll, nil
}

func (s *Service) GetPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	return s.polls.GetPoll(ctx, pollID)
}

func (s *Service) ListPollsByUser(ctx context.Context, userID string) ([]domain.Poll, error) {
	return s.polls.ListPollsByCreator(ctx, userID)
}

// ListPollSummaries returns every poll with its creator's display name.
// Creators that cannot be resolved are reported as "Unknown".
func (s *Service) ListPollSummaries(ctx context.Context) ([]domain.PollSummary, error) {
	polls, err := s.polls.ListPolls(ctx)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}

	names := make(map[string]string)
	summaries := make([]domain.PollSummary, 0, len(polls))
	for _, poll := range polls {
		name, ok := names[poll.CreatedBy]
		if !ok {
			name = s.creatorName(ctx, poll.CreatedBy)
			names[poll.CreatedBy] = name
		}

		summaries = append(summaries, domain.PollSummary{
			ID:        poll.ID,
			Question:  poll.Question,
			CreatedBy: name,
			CreatedAt: poll.CreatedAt,
			IsActive:  poll.IsActive,
		})
	}
	return summaries, nil
}

func (s *Service) creatorName(ctx context.Context, userID string) string {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			logging.WithUser(userID).Warn("Failed to resolve poll creator", "error", err)
		}
		return unknownCreator
	}
	if user.Name == "" {
		return unknownCreator
	}
	return user.Name
}

// SubmitVote records userID's choice on a poll, replacing any earlier vote,
// and publishes the new tally to the poll's viewers. The published VoteUpdate
// lists every option in poll order, zero counts included, whereas PollResults
// returns only the options that have votes.
func (s *Service) SubmitVote(ctx context.Context, userID, pollID string, optionIDs []string) error {
	optionIDs = dedupe(optionIDs)
	if len(optionIDs) == 0 {
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
		return invalidInput("at least one option is required")
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return err
	}

	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return fmt.Errorf("load poll: %w", err)
	}
	if err := validateBallot(poll, optionIDs); err != nil {
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if err := s.votes.UpsertVote(ctx, domain.Vote{PollID: poll.ID, UserID: userID, OptionIDs: optionIDs}); err != nil {
		return fmt.Errorf("store vote: %w", err)
	}
	metrics.VotesTotal.WithLabelValues("accepted").Inc()

	counts, err := s.votes.PollResults(ctx, poll.ID)
	if err != nil {
		logging.WithError(err).Error("Vote stored but results could not be recomputed", "poll_id", poll.ID, "user_id", userID)
		return nil
	}
	s.events.Publish(domain.VoteUpdate{PollID: poll.ID, Results: poll.Tally(counts)})
	return nil
}

// checkRateLimit fails open: a limiter outage must not block voting.
func (s *Service) checkRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}

	allowed, err := s.limiter.AllowVote(ctx, userID)
	if err != nil {
		logging.WithUser(userID).Warn("Vote rate limiter unavailable, allowing vote", "error", err)
		return nil
	}
	if !allowed {
		metrics.VotesTotal.WithLabelValues("rate_limited").Inc()
		return domain.ErrRateLimited
	}
	return nil
}

func validateBallot(poll *domain.Poll, optionIDs []string) error {
	if !poll.IsActive {
		return domain.ErrPollInactive
	}
	for _, id := range optionIDs {
		if !poll.HasOption(id) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidOption, id)
		}
	}
	if !poll.IsMultipleChoice && len(optionIDs) != 1 {
		return invalidInput("single-choice polls take exactly one option")
	}
	return nil
}

func (s *Service) GetVote(ctx context.Context, pollID, userID string) (*domain.Vote, error) {
	return s.votes.GetVote(ctx, pollID, userID)
}

// ListVotedPolls returns the polls userID has voted on.
func (s *Service) ListVotedPolls(ctx context.Context, userID string) ([]domain.Poll, error) {
	votes, err := s.votes.ListVotesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	if len(votes) == 0 {
		return []domain.Poll{}, nil
	}

	pollIDs := make([]string, 0, len(votes))
	for _, vote := range votes {
		pollIDs = append(pollIDs, vote.PollID)
	}

	polls, err := s.polls.ListPollsByIDs(ctx, pollIDs)
	if err != nil {
		return nil, fmt.Errorf("list voted polls: %w", err)
	}
	return polls, nil
}

// SetPollStatus opens or closes a poll. Only the poll's creator may do this.
func (s *Service) SetPollStatus(ctx context.Context, userID, pollID string, active bool) error {
	poll, err := s.ownedPoll(ctx, userID, pollID)
	if err != nil {
		return err
	}

	if err := s.polls.SetPollActive(ctx, poll.ID, active); err != nil {
		return fmt.Errorf("set poll status: %w", err)
	}

	logging.WithPoll(poll.ID).Info("Poll status changed", "user_id", userID, "is_active", active)
	s.events.Publish(domain.StatusUpdate{PollID: poll.ID, IsActive: active})
	return nil
}

// ResetVotes deletes every vote on a poll. Only the poll's creator may do this.
func (s *Service) ResetVotes(ctx context.Context, userID, pollID string) error {
	poll, err := s.ownedPoll(ctx, userID, pollID)
	if err != nil {
		return err
	}

	if err := s.votes.DeleteVotesForPoll(ctx, poll.ID); err != nil {
		return fmt.Errorf("reset votes: %w", err)
	}

	logging.WithPoll(poll.ID).Info("Poll votes reset", "user_id", userID)
	s.events.Publish(domain.Reset{PollID: poll.ID})
	return nil
}

func (s *Service) ownedPoll(ctx context.Context, userID, pollID string) (*domain.Poll, error) {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("load poll: %w", err)
	}
	if poll.CreatedBy != userID {
		return nil, domain.ErrNotPollOwner
	}
	return poll, nil
}

// PollResults returns the per-option vote counts of a poll. Options without votes
// are absent. Concurrent reads for the same poll share one query.
func (s *Service) PollResults(ctx context.Context, pollID string) ([]domain.OptionCount, error) {
	v, err, _ := s.resultsGroup.Do(pollID, func() (any, error) {
		return s.votes.PollResults(ctx, pollID)
	})
	if err != nil {
		return nil, fmt.Errorf("poll results: %w", err)
	}
	return slices.Clone(v.([]domain.OptionCount)), nil
}

func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, reason)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
