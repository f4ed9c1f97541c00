// Package main runs the Fatture in Cloud OAuth2 host server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/config"
	"github.com/visiaquantum/laravel-fattureincloud-php-sdk-sub000/internal/logging"
)

// Version is set by the build process
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parsing Redis URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(redisOpts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("connecting to Redis", "error", err)
			os.Exit(1)
		}
	}

	srv, err := newServer(cfg, rdb, logger)
	if err != nil {
		logger.Error("creating server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", cfg.Port,
			"version", Version,
			"mode", srv.facade.Mode().String())
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server stopped", "error", err)
		os.Exit(1)

	case <-shutdown:
		logger.Info("starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutting down server", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("closing server", "error", err)
			}
		}

		if err := srv.close(); err != nil {
			logger.Error("closing Redis connection", "error", err)
		}
	}
}
