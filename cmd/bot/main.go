package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/standupbuddy/standupbuddy/internal/api"
	"github.com/standupbuddy/standupbuddy/internal/config"
	"github.com/standupbuddy/standupbuddy/internal/conversation"
	"github.com/standupbuddy/standupbuddy/internal/database"
	"github.com/standupbuddy/standupbuddy/internal/scheduler"
	"github.com/standupbuddy/standupbuddy/internal/standup"
	"github.com/standupbuddy/standupbuddy/internal/team"
	"github.com/standupbuddy/standupbuddy/internal/telegram"
	"github.com/standupbuddy/standupbuddy/internal/user"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	users := user.NewRepository(db.Pool())
	teams := team.NewRepository(db.Pool())
	standups := standup.NewRepository(db.Pool())

	timers := scheduler.New()
	timers.Start()
	defer timers.Stop()

	botAPI, err := telegram.NewAPI(cfg.BotToken)
	if err != nil {
		slog.Error("failed to authorize bot", "error", err)
		os.Exit(1)
	}

	messenger := telegram.NewMessenger(botAPI)
	engine := standup.NewEngine(teams, standups, messenger, timers)
	store := conversation.NewStore(rdb)
	machine := conversation.NewMachine(users, teams, engine, store)
	bot := telegram.NewBot(botAPI, messenger, machine)

	if err := engine.Restore(ctx); err != nil {
		slog.Error("failed to restore daily triggers", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterDeps{
		DBPinger:    db,
		RedisPinger: redisPinger{rdb},
		Jobs:        timers,
		Version:     cfg.Version,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting ops server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	botErr := make(chan error, 1)
	go func() {
		slog.Info("starting bot", "username", bot.Username())
		if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
			botErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		slog.Error("ops server error", "error", err)
		os.Exit(1)
	case err := <-botErr:
		slog.Error("bot error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// redisPinger adapts the redis client to the health handler's Pinger.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
