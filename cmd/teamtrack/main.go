package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"teamtrack/internal/notify"
	"teamtrack/internal/rights"
	"teamtrack/internal/server"
	"teamtrack/internal/storage/sqlite"
	"teamtrack/internal/tracker"
	"teamtrack/internal/util"
)

func main() {
	addrFlag := flag.String("addr", util.EnvOrDefault("TEAMTRACK_ADDR", ":8080"), "HTTP listen address")
	dbFlag := flag.String("db", util.EnvOrDefault("TEAMTRACK_DB_PATH", "data/teamtrack.db"), "Path to sqlite database file")
	staticFlag := flag.String("static", util.EnvOrDefault("TEAMTRACK_STATIC_DIR", "web/dist"), "Directory with built frontend")
	redisFlag := flag.String("redis", util.EnvOrDefault("TEAMTRACK_REDIS_ADDR", "localhost:6379"), "Redis address for the notification queue")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("teamtrack starting")

	store, err := sqlite.Open(*dbFlag, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: *redisFlag})
	defer redisClient.Close()

	notifier := notify.NewQueue(redisClient)
	core := tracker.NewService(store, rights.New(store), notifier, logger)
	srv := server.New(store, core, logger, *staticFlag)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := notify.NewWorker(redisClient, notify.LogTransport{Logger: logger}, logger)
	go worker.Run(workerCtx)

	httpServer := &http.Server{
		Addr:    *addrFlag,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
