// Command sprinklerd is the entry point for the house irrigation controller.
//
// Startup sequence:
//  1. Parse command-line flags and environment variables (internal/config).
//  2. Initialize structured logging.
//  3. Wire every subsystem into a SprinklerCore aggregate (internal/app).
//  4. Start the HTTP API in a goroutine.
//  5. Start the 1 Hz background tick loop.
//  6. Block until SIGINT/SIGTERM, then shut everything down gracefully.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/housesprinkler/controller/internal/app"
	"github.com/housesprinkler/controller/internal/config"
	"github.com/housesprinkler/controller/internal/httpapi"
	"github.com/housesprinkler/controller/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})
	if cfg.Debug {
		log = logger.New(logger.Config{Level: "debug", Pretty: true})
	}

	log.Info().Str("config", cfg.ConfigPath).Str("listen", cfg.ListenAddr).Msg("starting sprinklerd")

	core, err := app.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire sprinkler core")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewRouter(core, log),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("http api listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.Run(ctx)
	log.Info().Msg("tick loop started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	if err := core.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("sprinkler core shutdown error")
	}

	log.Info().Msg("sprinklerd stopped")
}
