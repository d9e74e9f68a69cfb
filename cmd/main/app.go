package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhukovvlad/residence-go/cmd/internal/bootstrap"
	"github.com/zhukovvlad/residence-go/cmd/internal/config"
	"github.com/zhukovvlad/residence-go/cmd/internal/server"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := logging.GetLogger()
	logger.Info("Starting Residence import API...")

	// .env опционален: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("error loading .env file: %v", err)
	}

	cfg := config.GetConfig()
	if err := logging.Configure(cfg.LogLevel, cfg.Debug()); err != nil {
		logger.Fatalf("error configuring logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.Build(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatalf("error building import pipeline: %v", err)
	}

	var progress server.ProgressReader
	if pipeline.Progress != nil {
		progress = pipeline.Progress
	}
	srv := server.NewServer(pipeline.Service, progress, logger, cfg)

	serverAddress := fmt.Sprintf("%s:%s", cfg.Listen.BindIP, cfg.Listen.Port)
	httpServer := &http.Server{
		Addr:              serverAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", serverAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("error starting server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("background imports did not finish: %v", err)
	}
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Errorf("pipeline shutdown: %v", err)
	}
	logger.Info("stopped")
}
