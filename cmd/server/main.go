package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"realtime-gateway/internal/api"
	"realtime-gateway/internal/auth"
	"realtime-gateway/internal/backbone"
	"realtime-gateway/internal/config"
	"realtime-gateway/internal/database"
	"realtime-gateway/internal/firehose"
	"realtime-gateway/internal/gateway"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	verifier := auth.NewVerifier(cfg.Session.Secret, cfg.Session.CookieName)
	bb := backbone.NewRedis(redisClient.GetClient(), cfg.Backbone.TopicPrefix, logger)
	sink := firehose.New(&cfg.Kafka, logger)

	gw := gateway.New(cfg, verifier, bb, sink, logger)
	gw.EnsureStarted()

	router := api.NewRouter(gw, redisClient)
	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// The only fatal error in this subsystem: the listener itself.
			logger.Error("listener failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gw.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}
