package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omochice/chat-session/internal/config"
	"github.com/omochice/chat-session/internal/logger"
	"github.com/omochice/chat-session/internal/server"
)

func main() {
	cfg, err := config.ParseServer(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.LogLevel, os.Stdout, false)
	log := logger.Module("main")

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
	}

	log.Info().Msg("chat server stopped")
}
