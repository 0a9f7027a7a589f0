package user

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// Repository provides operations on the users table.
type Repository interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, tgID int64) (*User, error)
}
