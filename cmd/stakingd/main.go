// Package main is the entry point for the hive staking daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hive-staking/internal/api"
	"hive-staking/internal/bot"
	"hive-staking/internal/callback"
	"hive-staking/internal/config"
	"hive-staking/internal/external"
	"hive-staking/internal/metrics"
	"hive-staking/internal/pkg/db"
	"hive-staking/internal/pkg/lock"
	"hive-staking/internal/repository"
	"hive-staking/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, keeping default")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	var (
		store  service.Store
		health api.HealthFunc
	)
	if cfg.Database.Enabled {
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		pg := repository.NewPostgresStore(dbPool.Pool)
		if err := pg.Migrate(ctx, time.Now()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		if err := m.Register(dbPool.Collectors(metrics.Namespace)...); err != nil {
			log.Fatal().Err(err).Msg("Failed to register database metrics")
		}
		store = pg
		health = func(ctx context.Context) error { return dbPool.HealthCheck(ctx, 2*time.Second) }
	} else {
		log.Warn().Msg("Database disabled, staking state is kept in memory only")
		store = repository.NewMemoryStore(time.Now())
	}

	weights, err := cfg.WeightTable()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid item weights")
	}
	policy, err := cfg.RewardPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid distribution policy")
	}

	registryClient := external.NewRegistryClient(cfg.External.RegistryURL, cfg.External.CallerID, cfg.External.Timeout)
	tokenClient := external.NewTokenLedgerClient(cfg.External.TokenLedgerURL, cfg.External.CallerID, cfg.External.Timeout)
	registry := external.NewAsyncRegistry(registryClient, cfg.External.Timeout)

	svc, err := service.NewStakingService(ctx, store, registry, tokenClient, registryClient, m, service.Options{
		Owner:                cfg.Owner.ID,
		TokenLedger:          cfg.External.TokenLedgerID,
		Registry:             cfg.External.RegistryID,
		Lockup:               cfg.Staking.Lockup,
		DistributionInterval: cfg.Staking.DistributionInterval,
		Policy:               policy,
		Weights:              weights,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start staking engine")
	}
	registry.SetHandler(func(ctx context.Context, reply callback.Reply) error {
		return svc.Resume(ctx, reply)
	})

	server := api.NewServer(svc, m.Handler(), health)
	server.Start(cfg.API.Listen)

	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:   cfg,
			Engine:   svc,
			UserLock: lock.NewKeyLock(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go telegramBot.Start()
	} else {
		log.Info().Msg("No bot token configured, Telegram commands disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if telegramBot != nil {
		telegramBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP API shutdown failed")
	}

	// Replies still in flight are delivered before the store goes away
	registry.Close()
	log.Info().Msg("Staking daemon stopped gracefully")
}
