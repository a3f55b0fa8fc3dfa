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

type userDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	UserID string             `bson:"user_id"`
	Name   string             `bson:"name"`
}

type UserRepo struct {
	users *mongodriver.Collection
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(db *mongodriver.Database) *UserRepo {
	return &UserRepo{users: db.Collection(usersCollection)}
}

// StoreUser inserts the user unless one with the same user_id exists; an existing
// user keeps its original name.
func (r *UserRepo) StoreUser(ctx context.Context, user domain.User) (err error) {
	defer func(start time.Time) { observe("store_user", start, err) }(time.Now())

	filter := bson.M{"user_id": user.UserID}
	update := bson.M{"$setOnInsert": bson.M{"user_id": user.UserID, "name": user.Name}}
	_, err = r.users.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !mongodriver.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (user *domain.User, err error) {
	defer func(start time.Time) { observe("get_user", start, err) }(time.Now())

	var doc userDoc
	err = r.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &domain.User{ID: doc.ID.Hex(), UserID: doc.UserID, Name: doc.Name}, nil
}
