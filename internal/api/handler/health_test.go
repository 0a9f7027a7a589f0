package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeJobs struct {
	n int
}

func (f fakeJobs) Len() int { return f.n }

func TestHealth_Healthy(t *testing.T) {
	h := NewHealthHandler(fakePinger{}, fakePinger{}, fakeJobs{n: 3}, "1.2.3")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)

	var env struct {
		Data healthData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "healthy", env.Data.Status)
	assert.Equal(t, "1.2.3", env.Data.Version)
	assert.True(t, env.Data.Database)
	assert.True(t, env.Data.Redis)
	assert.Equal(t, 3, env.Data.Jobs)
}

func TestHealth_DegradedWhenStoreDown(t *testing.T) {
	h := NewHealthHandler(fakePinger{err: errors.New("down")}, fakePinger{}, fakeJobs{}, "dev")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	var env struct {
		Data healthData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "degraded", env.Data.Status)
	assert.False(t, env.Data.Database)
	assert.True(t, env.Data.Redis)
}
