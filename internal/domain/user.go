package domain

import "context"

// User is an account known to the poll service. UserID is the external identity
// (the login subject); ID is the storage identifier.
type User struct {
	ID     string `json:"_id,omitempty"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type UserRepository interface {
	// StoreUser inserts the user unless one with the same UserID already exists.
	StoreUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID string) (*User, error)
}
