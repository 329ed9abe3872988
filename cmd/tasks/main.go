package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"maintenance/internal/domain/models"
	"maintenance/internal/server"
	"maintenance/internal/service"
	db "maintenance/repository/db"
	inmemory "maintenance/repository/inmemory"
)

func main() {
	cfg, err := server.ReadConfig()
	if err != nil {
		slog.Error("failed to read config", "error", err)
		os.Exit(1)
	}

	log := mustMakeLogger(cfg.LogLevel)
	log.Info("starting task service", "addr", cfg.Address())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}

func mustMakeLogger(logLevel string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

type storage interface {
	service.UserRepository
	service.TaskRepository
	CountUsersByRole(ctx context.Context, role models.Role) (int, error)
	Close() error
}

type memoryStorage struct {
	*inmemory.Storage
}

func (memoryStorage) Close() error { return nil }

// openStorage picks PostgreSQL when a connection string is configured and
// falls back to process memory otherwise. Migrations run before connecting.
func openStorage(ctx context.Context, cfg *server.Config, log *slog.Logger) (storage, error) {
	if cfg.DBStr == "" {
		log.Warn("no database configured, data is kept in memory only")
		return memoryStorage{inmemory.NewStorage()}, nil
	}

	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		return nil, err
	}
	log.Info("migrations applied", "path", cfg.MigratePath)

	store, err := db.NewStorage(ctx, cfg.DBStr, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// warnStartup reports settings that leave the service open to abuse.
func warnStartup(ctx context.Context, cfg *server.Config, store storage, log *slog.Logger) {
	if cfg.UsesDefaultSecret() {
		log.Warn("JWT_SECRET is not set, tokens are signed with the public default secret")
	}
	admins, err := store.CountUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		log.Error("failed to count admins", "error", err)
		return
	}
	if admins == 0 {
		log.Warn("no admin account exists, the next registration requesting admin will receive it")
	}
}

func run(ctx context.Context, cfg *server.Config, log *slog.Logger) error {
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	warnStartup(ctx, cfg, store, log)

	api, err := server.NewTaskAPI(store, store, cfg, server.WithLogger(log))
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := api.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections", "timeout", cfg.ShutdownTimeout)
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serverErr
}
