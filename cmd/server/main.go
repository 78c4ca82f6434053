package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docsync/docsync/internal/core/realtime"
	"github.com/docsync/docsync/internal/core/storage"
	"github.com/docsync/docsync/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	config := server.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
	}

	logger, err := server.NewLogger(config.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var store storage.MessageStore = storage.NewNoopStore()
	if config.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		store = storage.NewRedisStore(client)
		logger.Info("message persistence enabled", zap.String("addr", config.Redis.Addr))
	}

	manager := realtime.NewManager(config.Realtime, store, logger)
	srv := server.NewServer(config, manager, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("error starting server", zap.Error(err))
	}

	<-stopCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping server", zap.Error(err))
	}
}
