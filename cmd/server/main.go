package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"collab-editor-api/internal/config"
	"collab-editor-api/internal/database"
	"collab-editor-api/internal/realtime"
	"collab-editor-api/internal/routes"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	// Init database
	database.InitDB(cfg.DBPath)

	// The hub is the process-wide registry of live connections; one instance,
	// injected into the handlers.
	hub := realtime.NewHub(realtime.Options{
		ConnectionTimeout: cfg.ConnectionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            log.With().Str("component", "hub").Logger(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := realtime.NewSupervisor(hub, cfg.SweepInterval,
		log.With().Str("component", "supervisor").Logger())
	go supervisor.Run(ctx)

	// Setup the routes (public, shared and protected)
	ginRoutes := routes.SetupRoutes(hub, log.With().Str("component", "realtime").Logger())

	log.Info().Str("port", cfg.Port).Msg("server starting")
	log.Info().Msg("API endpoints:")
	log.Info().Msg("  POST   /api/login")
	log.Info().Msg("  GET    /api/documents")
	log.Info().Msg("  POST   /api/documents")
	log.Info().Msg("  GET    /api/documents/:id")
	log.Info().Msg("  PUT    /api/documents/:id")
	log.Info().Msg("  DELETE /api/documents/:id")
	log.Info().Msg("  PUT    /api/documents/:id/content")
	log.Info().Msg("  GET    /api/documents/:id/presence")
	log.Info().Msg("  GET    /api/realtime/:id (websocket)")
	log.Info().Msg("  GET    /health")

	if err := ginRoutes.Run(cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
