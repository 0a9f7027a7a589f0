package handler

import (
	"context"
	"net/http"

	"github.com/standupbuddy/standupbuddy/internal/api/middleware"
	"github.com/standupbuddy/standupbuddy/internal/api/response"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobCounter reports how many timers are currently registered.
type JobCounter interface {
	Len() int
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db      Pinger
	redis   Pinger
	jobs    JobCounter
	version string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db, redis Pinger, jobs JobCounter, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		jobs:    jobs,
		version: version,
	}
}

type healthData struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database bool   `json:"database"`
	Redis    bool   `json:"redis"`
	Jobs     int    `json:"jobs"`
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	dbOK := h.db.Ping(r.Context()) == nil
	redisOK := h.redis.Ping(r.Context()) == nil

	status := "healthy"
	if !dbOK || !redisOK {
		status = "degraded"
	}

	data := healthData{
		Status:   status,
		Version:  h.version,
		Database: dbOK,
		Redis:    redisOK,
		Jobs:     h.jobs.Len(),
	}

	response.Success(w, http.StatusOK, data, requestID)
}
