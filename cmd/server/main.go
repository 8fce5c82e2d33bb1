package main

import (
	"context"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/gochat-rooms/internal/catalog"
	"github.com/Tyrowin/gochat-rooms/internal/server"
)

func main() {
	cfg := server.NewConfigFromEnv()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	rooms, err := catalog.LoadAndValidate(cfg.CatalogPath)
	if err != nil {
		logger.Error("loading room catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, rooms, logger)
	srv.StartHub()

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("GoChat relay started",
		"port", cfg.Port,
		"rooms", len(rooms.Rooms),
		"locale", cfg.Locale)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
