package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type optionDoc struct {
	ID   primitive.ObjectID `bson:"_id"`
	Text string             `bson:"text"`
}

type pollDoc struct {
	ID               primitive.ObjectID `bson:"_id"`
	Question         string             `bson:"question"`
	Options          []optionDoc        `bson:"options"`
	CreatedBy        string             `bson:"created_by"`
	CreatedAt        time.Time          `bson:"created_at"`
	IsMultipleChoice bool               `bson:"is_multiple_choice"`
	IsActive         bool               `bson:"isactive"`
}

func (d pollDoc) toDomain() domain.Poll {
	opts := make([]domain.Option, 0, len(d.Options))
	for _, o := range d.Options {
		opts = append(opts, domain.Option{ID: o.ID.Hex(), Text: o.Text})
	}
	return domain.Poll{
		ID:               d.ID.Hex(),
		Question:         d.Question,
		Options:          opts,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		IsMultipleChoice: d.IsMultipleChoice,
		IsActive:         d.IsActive,
	}
}

type PollRepo struct {
	polls *mongodriver.Collection
	now   func() time.Time
}

var _ domain.PollRepository = (*PollRepo)(nil)

func NewPollRepo(db *mongodriver.Database) *PollRepo {
	return &PollRepo{
		polls: db.Collection(pollsCollection),
		now:   time.Now,
	}
}

func (r *PollRepo) CreatePoll(ctx context.Context, poll domain.NewPoll) (created *domain.Poll, err error) {
	defer func(start time.Time) { observe("create_poll", start, err) }(time.Now())

	doc := pollDoc{
		ID:               primitive.NewObjectID(),
		Question:         poll.Question,
		Options:          make([]optionDoc, 0, len(poll.Options)),
		CreatedBy:        poll.CreatedBy,
		CreatedAt:        r.now().UTC().Truncate(time.Millisecond),
		IsMultipleChoice: poll.IsMultipleChoice,
		IsActive:         true,
	}
	for _, text := range poll.Options {
		doc.Options = append(doc.Options, optionDoc{ID: primitive.NewObjectID(), Text: text})
	}

	if _, err := r.polls.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert poll: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func (r *PollRepo) GetPoll(ctx context.Context, pollID string) (poll *domain.Poll, err error) {
	defer func(start time.Time) { observe("get_poll", start, err) }(time.Now())

	oid, err := parseID(pollID)
	if err != nil {
		return nil, err
	}

	var doc pollDoc
	err = r.polls.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	result := doc.toDomain()
	return &result, nil
}

func (r *PollRepo) ListPolls(ctx context.Context) (polls []domain.Poll, err error) {
	defer func(start time.Time) { observe("list_polls", start, err) }(time.Now())
	return r.find(ctx, bson.M{})
}

func (r *PollRepo) ListPollsByCreator(ctx context.Context, userID string) (polls []domain.Poll, err error) {
	defer func(start time.Time) { observe("list_polls_by_creator", start, err) }(time.Now())
	return r.find(ctx, bson.M{"created_by": userID})
}

func (r *PollRepo) ListPollsByIDs(ctx context.Context, pollIDs []string) (polls []domain.Poll, err error) {
	defer func(start time.Time) { observe("list_polls_by_ids", start, err) }(time.Now())

	if len(pollIDs) == 0 {
		return []domain.Poll{}, nil
	}
	oids, err := parseIDs(pollIDs)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
}

func (r *PollRepo) SetPollActive(ctx context.Context, pollID string, active bool) (err error) {
	defer func(start time.Time) { observe("set_poll_active", start, err) }(time.Now())

	oid, err := parseID(pollID)
	if err != nil {
		return err
	}

	res, err := r.polls.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"isactive": active}})
	if err != nil {
		return fmt.Errorf("failed to update poll status: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPollNotFound
	}
	return nil
}

// find returns matching polls, newest first.
func (r *PollRepo) find(ctx context.Context, filter bson.M) ([]domain.Poll, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.polls.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}

	var docs []pollDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode polls: %w", err)
	}

	polls := make([]domain.Poll, 0, len(docs))
	for _, d := range docs {
		polls = append(polls, d.toDomain())
	}
	return polls, nil
}
