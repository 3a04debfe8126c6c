package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/tapchain/go/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(getEnv("TAPCHAIN_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, _ := zerolog.ParseLevel(config.LogLevel)
	zerolog.SetGlobalLevel(level)

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go services.Events.Run(runCtx)
	go services.Gateway.Start(runCtx)
	go func() {
		if err := services.Coordinator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("coordinator stopped")
		}
	}()

	if err := services.Controller.Sync(runCtx); err != nil {
		log.Error().Err(err).Msg("initial wallet sync failed")
	}
	services.Session.OnChange(func() { services.Controller.Wake() })
	go func() {
		if err := services.Controller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("chain sync stopped")
		}
	}()
	if config.WatchAccounts {
		go func() {
			if err := services.Controller.WatchAccounts(runCtx, services.Watcher); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("account subscription ended, relying on polling")
			}
		}()
	}

	server := gateway.NewServer(services.Gateway)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-services.Coordinator.Done():
	case <-shutdownCtx.Done():
	}
	select {
	case <-services.Events.Done():
	case <-shutdownCtx.Done():
	}
	log.Info().Msg("tapchain shutdown complete")
}
