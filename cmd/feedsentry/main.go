package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedsentry/internal/auth"
	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds"
	"feedsentry/internal/server"
)

func main() {
	hashToken := flag.String("hash-token", "", "print the bcrypt hash of an API token and exit")
	flag.Parse()

	if *hashToken != "" {
		hash, err := auth.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to hash token:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load .env file if it exists
	godotenv.Load()

	if err := run(); err != nil {
		core.NewLogger().Error("Feed Sentry stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := core.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := core.NewLoggerWithLevel(os.Stdout, config.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := core.OpenDatabase(ctx, config.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		db.LogStats()
		db.Close()
	}()

	bus := broadcast.NewBus(logger)
	if config.Broadcast.RedisAddress != "" {
		publisher, err := broadcast.NewRedisPublisher(ctx, config.Broadcast)
		if err != nil {
			return err
		}
		defer publisher.Close()
		bus.Subscribe("redis", publisher)
		logger.Info("Forwarding events to redis", "channel", config.Broadcast.RedisChannel)
	}

	registry := core.NewRegistry(logger)
	if err := registry.Register(feeds.NewFeature(logger, db, bus, feeds.NewConfig(config))); err != nil {
		return err
	}
	if err := registry.InitAll(ctx); err != nil {
		return err
	}

	srv := server.New(config, logger, registry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		registry.ShutdownAll(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
