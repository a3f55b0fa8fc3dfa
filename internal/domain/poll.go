package domain

import (
	"context"
	"time"
)

type Option struct {
	ID   string `json:"_id"`
	Text string `json:"text"`
}

type Poll struct {
	ID               string    `json:"_id"`
	Question         string    `json:"question"`
	Options          []Option  `json:"options"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	IsMultipleChoice bool      `json:"is_multiple_choice"`
	IsActive         bool      `json:"isactive"`
}

// HasOption reports whether optionID is one of the poll's options.
func (p *Poll) HasOption(optionID string) bool {
	for _, o := range p.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Tally lays counts out in the poll's option order, with a zero entry for
// options nobody picked. Counts for unknown options are dropped.
func (p *Poll) Tally(counts []OptionCount) []OptionCount {
	byOption := make(map[string]int, len(counts))
	for _, c := range counts {
		byOption[c.OptionID] += c.Count
	}
	results := make([]OptionCount, 0, len(p.Options))
	for _, o := range p.Options {
		results = append(results, OptionCount{OptionID: o.ID, Count: byOption[o.ID]})
	}
	return results
}

// PollSummary is the list view of a poll; CreatedBy holds the creator's display name.
type PollSummary struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"isactive"`
}

type Vote struct {
	ID        string   `json:"_id,omitempty"`
	PollID    string   `json:"poll_id"`
	UserID    string   `json:"user_id"`
	OptionIDs []string `json:"option_ids"`
}

// NewPoll describes a poll to be created; the repository assigns all ids.
type NewPoll struct {
	Question         string
	Options          []string
	CreatedBy        string
	IsMultipleChoice bool
}

type PollRepository interface {
	CreatePoll(ctx context.Context, poll NewPoll) (*Poll, error)
	GetPoll(ctx context.Context, pollID string) (*Poll, error)
	ListPolls(ctx context.Context) ([]Poll, error)
	ListPollsByCreator(ctx context.Context, userID string) ([]Poll, error)
	ListPollsByIDs(ctx context.Context, pollIDs []string) ([]Poll, error)
	SetPollActive(ctx context.Context, pollID string, active bool) error
}

type VoteRepository interface {
	// UpsertVote replaces the option ids of the user's existing vote on the poll, or inserts one.
	UpsertVote(ctx context.Context, vote Vote) error
	GetVote(ctx context.Context, pollID, userID string) (*Vote, error)
	ListVotesByUser(ctx context.Context, userID string) ([]Vote, error)
	DeleteVotesForPoll(ctx context.Context, pollID string) error
	// PollResults returns per-option counts; options without votes are absent.
	PollResults(ctx context.Context, pollID string) ([]OptionCount, error)
}
