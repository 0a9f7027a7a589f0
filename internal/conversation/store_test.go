package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestStore_MissingContextIsIdle(t *testing.T) {
	s, _ := testStore(t)

	c, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State)
	assert.Nil(t, c.TeamID)
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := testStore(t)

	teamID := uuid.New()
	in := &Context{
		State:         StateSetSchedule,
		TeamID:        &teamID,
		PendingTime:   "09:30",
		PendingOffset: "UTC+3",
		PendingDays:   []int{0, 2, 4},
	}
	require.NoError(t, s.Put(context.Background(), 42, in))

	out, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStore_ContextsAreScopedPerUser(t *testing.T) {
	s, _ := testStore(t)

	require.NoError(t, s.Put(context.Background(), 1, &Context{State: StateMenu}))

	c, err := s.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State)
}

func TestStore_ExpiredContextRestartsIdle(t *testing.T) {
	s, mr := testStore(t)

	require.NoError(t, s.Put(context.Background(), 42, &Context{State: StateJoinCode}))
	mr.FastForward(contextTTL + time.Minute)

	c, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State)
}

func TestStore_CorruptRecordRestartsIdle(t *testing.T) {
	s, mr := testStore(t)

	require.NoError(t, mr.Set("conv:42", "{not json"))

	c, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State)
}
