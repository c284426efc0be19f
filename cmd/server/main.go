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

	"face-attendance-go/config"
	"face-attendance-go/internal/app"
	"face-attendance-go/internal/logger"
	"face-attendance-go/internal/util/timezone"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	configPath := os.Getenv("ATTENDANCE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logFile, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logFile.Close()

	timezone.Initialize()
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	application.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           application.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Errorf("Server stopped unexpectedly: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
	if err := application.Close(); err != nil {
		log.Errorf("Failed to release resources: %v", err)
	}
	log.Info("Server stopped.")
}
