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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/auctionhub/auction-engine/internal/frontend"
	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/metrics"
	"github.com/auctionhub/auction-engine/internal/replication"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
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

	memberName := "frontend-" + uuid.NewString()[:8]
	ch := group.NewRedisChannel(rdb, groupName, memberName)
	defer ch.Close()
	slog.Info("connected to group", "group", groupName, "member", memberName)

	coord := replication.New(ch, timeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go frontend.WatchMembership(ctx, ch, 10*time.Second)

	// --- Subscriber relay and service ---
	relay := frontend.NewRelay()
	svc := frontend.NewService(coord, relay, nil, nil)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auction-frontend"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for double-auction outcome notifications.
		r.Get("/ws", relay.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auction-frontend listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	slog.Info("shutting down auction-frontend...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auction-frontend stopped")
}
