// Jamie bot - Discord DM front end for watch-party streaming.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deepc0py/Jamie/internal/bot"
	"github.com/deepc0py/Jamie/internal/config"
	"github.com/deepc0py/Jamie/internal/cua"
	"github.com/deepc0py/Jamie/internal/discord"
	"github.com/deepc0py/Jamie/internal/session"
	"github.com/deepc0py/Jamie/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	obs := config.LoadObs()
	setupLogger(obs)

	cfg, err := config.LoadBot()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting bot",
		"webhook_addr", cfg.WebhookHost+":"+cfg.WebhookPort,
		"controller", cfg.CUAEndpoint)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.HistoryDBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	sessions := session.NewManager()
	controller := cua.NewClient(cfg.CUAEndpoint, cfg.CUATimeout)
	rest := discord.NewClient(cfg.DiscordToken)
	state := discord.NewState()

	var feed *bot.StatusFeed
	if cfg.StatusFeedEnabled {
		feed = bot.NewStatusFeed()
	}

	updater := bot.NewUpdater(sessions, rest, repo, feed)
	handler := bot.NewHandler(sessions, controller, state, rest, cfg.WebhookURL())
	receiver := bot.NewReceiver(cfg.WebhookHost, cfg.WebhookPort, updater.HandleStatusUpdate, feed, repo)
	gateway := discord.NewGateway(cfg.DiscordToken, state, handler.HandleDM)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Archive sessions the sweeper expires so history survives restarts.
	session.StartSweeper(ctx, sessions, cfg.SweepInterval, cfg.SessionMaxAge, updater.ArchiveSwept)
	slog.Info("Session sweeper started", "interval", cfg.SweepInterval, "max_age", cfg.SessionMaxAge)

	go func() {
		if err := receiver.Start(); err != nil {
			slog.Error("Webhook receiver failed", "error", err)
			stop()
		}
	}()

	go func() {
		if err := gateway.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Gateway connection failed", "error", err)
			stop()
		}
	}()

	select {
	case <-gateway.Ready():
		slog.Info("Bot is ready for DMs")
	case <-ctx.Done():
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := receiver.Shutdown(shutdownCtx); err != nil {
		slog.Error("Webhook receiver forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Bot stopped successfully")
}

func setupLogger(obs *config.ObsConfig) {
	level := slog.LevelInfo
	switch obs.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if obs.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
