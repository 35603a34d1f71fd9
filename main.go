package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-signal-engine/config"
	"binance-signal-engine/internal/anomaly"
	"binance-signal-engine/internal/api"
	"binance-signal-engine/internal/auth"
	"binance-signal-engine/internal/binance"
	"binance-signal-engine/internal/bot"
	"binance-signal-engine/internal/cache"
	"binance-signal-engine/internal/database"
	"binance-signal-engine/internal/engine"
	"binance-signal-engine/internal/events"
	"binance-signal-engine/internal/liquidity"
	"binance-signal-engine/internal/logging"
	"binance-signal-engine/internal/notification"
	"binance-signal-engine/internal/regime"
	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/scanner"
	"binance-signal-engine/internal/sentiment"
	"binance-signal-engine/internal/strategy"
	"binance-signal-engine/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("Starting signal engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets come from Vault when enabled, else from env/config
	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
		TLSEnabled: cfg.VaultConfig.TLSEnabled,
		CACert:     cfg.VaultConfig.CACert,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize vault client")
	}
	secrets, err := vaultClient.LoadSecrets(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load secrets")
	}
	if secrets.TelegramBotToken == "" {
		secrets.TelegramBotToken = cfg.NotificationConfig.Telegram.BotToken
	}
	if secrets.DiscordWebhook == "" {
		secrets.DiscordWebhook = cfg.NotificationConfig.Discord.WebhookURL
	}
	if secrets.JWTSecret == "" {
		secrets.JWTSecret = cfg.AuthConfig.JWTSecret
	}

	// Market data source
	var client binance.MarketDataClient
	if cfg.BinanceConfig.MockMode {
		logger.Warn().Msg("Mock mode enabled, using simulated market data")
		client = binance.NewMockClient()
	} else {
		apiKey := secrets.BinanceAPIKey
		if apiKey == "" {
			apiKey = cfg.BinanceConfig.APIKey
		}
		client = binance.NewClient(cfg.BinanceConfig.BaseURL, apiKey)
	}

	// Optional Redis-backed cache shared across processes
	var anomalyStore anomaly.Store
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cache.Config{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-memory caches only")
		} else {
			anomalyStore = cacheService
			defer cacheService.Close()
		}
	}

	// Optional persistence
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		repo = database.NewRepository(db)
	}

	// Decision pipeline
	bus := events.NewBus()
	liquidityAnalyzer := liquidity.NewAnalyzer(cfg.EngineConfig.LiquidityFloor, logger)
	classifier := regime.NewClassifier(logger)
	anomalyScorer := anomaly.NewScorer(client, anomalyStore, logger)
	strategies := []strategy.Strategy{
		strategy.NewTrapStrategy(logger),
		strategy.NewSMCStrategy(logger),
		strategy.NewScalpStrategy(logger),
	}

	// Risk
	riskParams := risk.DefaultParameters()
	riskParams.AccountBalance = cfg.RiskConfig.AccountBalance
	riskParams.RiskPercentage = cfg.RiskConfig.RiskPercentage
	riskParams.MaxLeverage = cfg.RiskConfig.MaxLeverage
	riskParams.MaxPortfolioRisk = cfg.RiskConfig.MaxPortfolioRisk
	riskManager := risk.NewManager(riskParams, logger)

	engineCfg := engine.DefaultConfig()
	engineCfg.Interval = cfg.EngineConfig.Interval
	engineCfg.KlineLimit = cfg.EngineConfig.KlineLimit
	engineCfg.MinConfidence = cfg.EngineConfig.MinConfidence
	engineCfg.MaxDailySignals = cfg.EngineConfig.MaxDailySignals
	engineCfg.Cooldown = time.Duration(cfg.EngineConfig.CooldownMinutes) * time.Minute
	eng := engine.New(client, liquidityAnalyzer, classifier, strategies, riskManager, bus, engineCfg, logger)

	// Market scanner
	var marketScanner *scanner.Scanner
	if cfg.ScannerConfig.Enabled {
		scannerCfg := scanner.DefaultConfig()
		scannerCfg.Interval = time.Duration(cfg.ScannerConfig.IntervalMinutes) * time.Minute
		scannerCfg.MaxConcurrent = cfg.ScannerConfig.Workers
		scannerCfg.MinVolumeUSD = cfg.ScannerConfig.MinVolume
		scannerCfg.MaxFundingRate = cfg.ScannerConfig.MaxFundingRate
		scannerCfg.MaxSpread = cfg.ScannerConfig.MaxSpreadPercent
		scannerCfg.TopLimit = cfg.ScannerConfig.TopMarkets
		marketScanner = scanner.New(client, scannerCfg, logger)
	}

	// Sentiment
	var sentimentAnalyzer *sentiment.Analyzer
	if cfg.SentimentConfig.Enabled {
		sentimentAnalyzer = sentiment.NewAnalyzer(cfg.SentimentConfig.Feeds, logger)
	}

	// Notifications
	var notifier *notification.Manager
	if cfg.NotificationConfig.Enabled {
		var notifiers []notification.Notifier
		if cfg.NotificationConfig.Telegram.Enabled && secrets.TelegramBotToken != "" {
			notifiers = append(notifiers, notification.NewTelegramNotifier(
				secrets.TelegramBotToken, cfg.NotificationConfig.Telegram.ChatID))
		}
		if cfg.NotificationConfig.Discord.Enabled && secrets.DiscordWebhook != "" {
			notifiers = append(notifiers, notification.NewDiscordNotifier(secrets.DiscordWebhook))
		}
		notifier = notification.NewManager(logger, notifiers...)
	}

	// Orchestrator
	botCfg := bot.DefaultConfig()
	botCfg.EvaluateInterval = cfg.EngineConfig.EvaluateIntervalDuration()
	botCfg.Symbols = cfg.EngineConfig.Symbols
	botCfg.MaxSymbols = cfg.EngineConfig.MaxSymbols
	tradingBot := bot.New(botCfg, client, eng, marketScanner, classifier,
		sentimentAnalyzer, anomalyScorer, riskManager, notifier, repo, bus, logger)

	// Live kline stream keeps the regime cache fresh for static symbols
	var stream *binance.StreamClient
	if !cfg.BinanceConfig.MockMode && len(cfg.EngineConfig.Symbols) > 0 {
		stream = binance.NewStreamClient("", cfg.EngineConfig.Symbols, cfg.EngineConfig.Interval, logger)
		if err := stream.Start(); err != nil {
			logger.Warn().Err(err).Msg("kline stream unavailable, relying on REST polling")
			stream = nil
		} else {
			go func() {
				for ev := range stream.Events() {
					if ev.IsClosed {
						classifier.Invalidate(ev.Symbol)
					}
				}
			}()
		}
	}

	if err := tradingBot.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start bot")
	}

	// Auth is optional; without it the mutating endpoints are open
	var authService *auth.Service
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(secrets.JWTSecret,
			time.Duration(cfg.AuthConfig.TokenHours)*time.Hour)
		authService, err = auth.NewService(cfg.AuthConfig.AdminUser, cfg.AuthConfig.AdminPassword, jwtManager)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize auth")
		}
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowOrigins:   cfg.ServerConfig.AllowOrigins,
		RateLimit:      cfg.ServerConfig.RateLimit,
	}, tradingBot, repo, authService, jwtManager, bus, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server exited")
			cancel()
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
	if stream != nil {
		stream.Stop()
	}
	if err := tradingBot.Stop(); err != nil && err != bot.ErrNotRunning {
		logger.Error().Err(err).Msg("bot shutdown failed")
	}

	logger.Info().Msg("Signal engine stopped")
}
