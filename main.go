package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/pepperwatch/config"
	"sjsage522/pepperwatch/internal/fetcher"
	"sjsage522/pepperwatch/internal/pepper"
	"sjsage522/pepperwatch/internal/scheduler"
	"sjsage522/pepperwatch/internal/store"
	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/services/cache"
	"sjsage522/pepperwatch/services/notifier"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("watch_interval", cfg.WatchInterval).
		Dur("category_tick", cfg.CategoryTick).
		Int("digest_hour", cfg.DigestHour).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Create and start the scheduler
	sched := scheduler.New(cfg, services.Pepper, services.Storage, services.Notifier)

	schedulerDone := make(chan struct{})
	go func() {
		log.Info().Msg("Starting deal engine")
		sched.Run(ctx)
		close(schedulerDone)
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-schedulerDone
	case <-schedulerDone:
		log.Info().Msg("Scheduler exited")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache    cache.CacheService
	Storage  store.Storage
	Notifier notifier.Notifier
	Pepper   *pepper.Client
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Notifier != nil {
		s.Notifier.Close()
	}
	if s.Storage != nil {
		s.Storage.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	cacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
	if cacheService == nil {
		return nil, fmt.Errorf("failed to create cache service")
	}
	services.Cache = cacheService

	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	// Initialize storage
	storage, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	services.Storage = storage

	logger.Info("Opened database at %s", cfg.DatabasePath)

	// Initialize notifier
	redisNotifier := notifier.NewRedisNotifier(
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamMaxLength,
	)
	if redisNotifier == nil {
		return nil, fmt.Errorf("failed to create redis notifier")
	}
	services.Notifier = redisNotifier

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	// Initialize the site client on top of the paced fetcher
	pageFetcher := fetcher.New(services.Cache, fetcher.Options{
		Timeout:       cfg.FetchTimeout,
		Retries:       cfg.FetchRetries,
		Pacing:        cfg.FetchPacing,
		BlockCooldown: cfg.BlockCooldown,
	})
	services.Pepper = pepper.NewClient(pageFetcher, pepper.Options{
		BaseURL:           cfg.BaseURL,
		SearchURLTemplate: cfg.SearchURLTemplate,
		GroupURLTemplate:  cfg.GroupURLTemplate,
		FlightURL:         cfg.FlightURL,
		DefaultLimit:      cfg.ResultLimit,
	})

	return services, nil
}
