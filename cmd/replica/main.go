package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/auctionhub/auction-engine/internal/backend"
	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/ledger"
	"github.com/auctionhub/auction-engine/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	groupName := os.Getenv("GROUP")
	if groupName == "" {
		groupName = "auction-group"
	}
	timeout := 5 * time.Second
	if v := os.Getenv("REPLICA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid REPLICA_TIMEOUT", "value", v, "err", err)
			os.Exit(1)
		}
		timeout = d
	}

	// --- Group channel ---
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		slog.Error("redis unreachable", "err", err)
		os.Exit(1)
	}
	cancelPing()

	memberName := "replica-" + uuid.NewString()[:8]
	ch := group.NewRedisChannel(rdb, groupName, memberName)
	defer ch.Close()
	slog.Info("joining group", "group", groupName, "member", memberName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- State transfer, then serve ---
	// Bootstrap runs before Serve so this replica's own state queries never
	// reach itself.
	led := ledger.New()
	backend.Bootstrap(ctx, ch, led, timeout)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ch.Serve(ctx, backend.New(led).Handle)
	}()

	// --- Ops endpoints ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auction-replica"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auction-replica listening", "port", port, "member", memberName)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("group serve error", "err", err)
		}
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	slog.Info("shutting down auction-replica...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auction-replica stopped")
}
