package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type voteDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	PollID    primitive.ObjectID   `bson:"poll_id"`
	UserID    string               `bson:"user_id"`
	OptionIDs []primitive.ObjectID `bson:"option_ids"`
}

func (d voteDoc) toDomain() domain.Vote {
	return domain.Vote{
		ID:        d.ID.Hex(),
		PollID:    d.PollID.Hex(),
		UserID:    d.UserID,
		OptionIDs: hexIDs(d.OptionIDs),
	}
}

type optionCountDoc struct {
	OptionID primitive.ObjectID `bson:"_id"`
	Count    int                `bson:"count"`
}

type VoteRepo struct {
	votes *mongodriver.Collection
}

var _ domain.VoteRepository = (*VoteRepo)(nil)

func NewVoteRepo(db *mongodriver.Database) *VoteRepo {
	return &VoteRepo{votes: db.Collection(votesCollection)}
}

func (r *VoteRepo) UpsertVote(ctx context.Context, vote domain.Vote) (err error) {
	defer func(start time.Time) { observe("upsert_vote", start, err) }(time.Now())

	pollID, err := parseID(vote.PollID)
	if err != nil {
		return err
	}
	optionIDs, err := parseIDs(vote.OptionIDs)
	if err != nil {
		return err
	}

	filter := bson.M{"poll_id": pollID, "user_id": vote.UserID}
	update := bson.M{"$set": bson.M{"option_ids": optionIDs}}
	if _, err := r.votes.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

func (r *VoteRepo) GetVote(ctx context.Context, pollID, userID string) (vote *domain.Vote, err error) {
	defer func(start time.Time) { observe("get_vote", start, err) }(time.Now())

	oid, err := parseID(pollID)
	if err != nil {
		return nil, err
	}

	var doc voteDoc
	err = r.votes.FindOne(ctx, bson.M{"poll_id": oid, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, domain.ErrVoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func (r *VoteRepo) ListVotesByUser(ctx context.Context, userID string) (votes []domain.Vote, err error) {
	defer func(start time.Time) { observe("list_votes_by_user", start, err) }(time.Now())

	cursor, err := r.votes.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}

	var docs []voteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode votes: %w", err)
	}

	votes = make([]domain.Vote, 0, len(docs))
	for _, d := range docs {
		votes = append(votes, d.toDomain())
	}
	return votes, nil
}

func (r *VoteRepo) DeleteVotesForPoll(ctx context.Context, pollID string) (err error) {
	defer func(start time.Time) { observe("delete_votes_for_poll", start, err) }(time.Now())

	oid, err := parseID(pollID)
	if err != nil {
		return err
	}
	if _, err := r.votes.DeleteMany(ctx, bson.M{"poll_id": oid}); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}

func (r *VoteRepo) PollResults(ctx context.Context, pollID string) (results []domain.OptionCount, err error) {
	defer func(start time.Time) { observe("poll_results", start, err) }(time.Now())

	oid, err := parseID(pollID)
	if err != nil {
		return nil, err
	}

	pipeline := mongodriver.Pipeline{
		{{Key: "$match", Value: bson.M{"poll_id": oid}}},
		{{Key: "$unwind", Value: "$option_ids"}},
		{{Key: "$group", Value: bson.M{"_id": "$option_ids", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.votes.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate poll results: %w", err)
	}

	var docs []optionCountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode poll results: %w", err)
	}

	results = make([]domain.OptionCount, 0, len(docs))
	for _, d := range docs {
		results = append(results, domain.OptionCount{OptionID: d.OptionID.Hex(), Count: d.Count})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].OptionID < results[j].OptionID })
	return results, nil
}
