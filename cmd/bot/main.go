package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/discuit"
	"github.com/discuit-community/alt-text-bot/internal/httpserver"
	"github.com/discuit-community/alt-text-bot/internal/llm"
	"github.com/discuit-community/alt-text-bot/internal/notifications"
	"github.com/discuit-community/alt-text-bot/internal/roundup"
	"github.com/discuit-community/alt-text-bot/internal/scheduler"
	"github.com/discuit-community/alt-text-bot/internal/tracker"
	"github.com/discuit-community/alt-text-bot/internal/watcher"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting alt-text-bot")

	// Open the tracker database
	store, err := tracker.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open tracker store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log in to Discuit
	client := discuit.NewClient(cfg.DiscuitBaseURL)
	bot, err := client.Login(ctx, cfg.DiscuitUsername, cfg.DiscuitPassword)
	if err != nil {
		logrus.Fatalf("Failed to log in to Discuit: %v", err)
	}
	logrus.Infof("Logged in as @%s", bot.Username)

	// Initialize the caption service
	captioner := llm.NewService(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.DiscuitBaseURL)

	// Initialize the watch loop
	watchService := watcher.NewService(cfg, store, client, captioner, bot.Username)
	go func() {
		if err := watchService.Run(ctx); err != nil && err != context.Canceled {
			logrus.Errorf("Watch loop stopped: %v", err)
		}
	}()

	// Initialize roundup generation and delivery
	reports := roundup.NewGenerator(store)
	notificationService := notifications.NewService(cfg)
	schedulerService := scheduler.NewService(cfg, reports, client, notificationService)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// Set up HTTP server for health checks and the query API
	server := httpserver.NewServer(cfg, store, watchService, schedulerService)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
