package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Repo interface {
	// Create inserts a new user and fails with ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, user User) error
	// Upsert links an external identity to the account holding its email, creating it when absent.
	Upsert(ctx context.Context, user User) (User, error)
	GetByID(ctx context.Context, userID string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}
