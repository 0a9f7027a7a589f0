package user

import "time"

// User represents a row in the users table. The primary key is the
// platform user id, so a user is created (or renamed) on first contact
// and never deleted.
type User struct {
	TgID      int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
