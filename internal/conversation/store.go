package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// contextTTL bounds how long an abandoned wizard survives. A conversation
// that expires simply restarts from the menu.
const contextTTL = 24 * time.Hour

// Store keeps per-user conversation contexts in redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a Store over the given redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func convKey(userID int64) string {
	return fmt.Sprintf("conv:%d", userID)
}

// Get loads the user's context. A missing or expired record yields a fresh
// idle context.
func (s *Store) Get(ctx context.Context, userID int64) (*Context, error) {
	raw, err := s.rdb.Get(ctx, convKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Context{State: StateIdle}, nil
		}
		return nil, fmt.Errorf("loading conversation context: %w", err)
	}

	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// A corrupt record is unrecoverable; start over rather than fail
		// every subsequent interaction.
		return &Context{State: StateIdle}, nil
	}
	return &c, nil
}

// Put stores the user's context with a sliding TTL.
func (s *Store) Put(ctx context.Context, userID int64, c *Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding conversation context: %w", err)
	}
	if err := s.rdb.Set(ctx, convKey(userID), raw, contextTTL).Err(); err != nil {
		return fmt.Errorf("storing conversation context: %w", err)
	}
	return nil
}
