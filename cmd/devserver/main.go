package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/internal/config"
	"github.com/satriahrh/arunika/client/internal/devserver"
	"github.com/satriahrh/arunika/client/internal/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	server := devserver.New(devserver.Config{
		JWTSecret:        cfg.DevServer.JWTSecret,
		TokenTTL:         cfg.DevServer.TokenTTL,
		ReplyAfterFrames: 24,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := server.Start(cfg.DevServer.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Dev server started", zap.String("addr", cfg.DevServer.Addr))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
