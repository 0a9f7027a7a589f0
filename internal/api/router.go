// Package api exposes the operational HTTP surface: health only, the bot
// itself speaks over long polling rather than webhooks.
package api

import (
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/standupbuddy/standupbuddy/internal/api/handler"
	"github.com/standupbuddy/standupbuddy/internal/api/middleware"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger    handler.Pinger
	RedisPinger handler.Pinger
	Jobs        handler.JobCounter
	Version     string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.RedisPinger, deps.Jobs, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	return r
}
