package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ai"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/cache"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/config"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/conversation"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/flags"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/mira"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/pipeline"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/rpc"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/server"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main wires the trading API: wallet store, position ledger, AMM client,
// purchase pipeline, and the HTTP server with graceful shutdown.
func main() {
	// Initialize structured logger with custom formatting
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	// Load and validate configuration from environment variables
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Wallet secret encryption
	signer, err := wallet.NewSigner(cfg.EncryptionKey)
	if err != nil {
		logger.WithError(err).Fatal("invalid encryption key")
	}

	// Wallet store (sqlite)
	wallets, err := wallet.NewSQLStore(ctx, wallet.StoreConfig{
		Path:   cfg.WalletDBPath,
		Signer: signer,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to open wallet store")
	}
	defer wallets.Close()

	// Position ledger (sqlite)
	positions, err := ledger.NewStore(ctx, ledger.StoreConfig{
		Path:   cfg.LedgerDBPath,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to open position ledger")
	}
	defer positions.Close()

	// AMM client over the node's JSON-RPC endpoint
	amm := mira.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.NodeRPCURL,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	defer amm.Close()

	// Redis is optional for the API; without it the trade feed and toggles
	// endpoints are disabled but trading still works.
	var (
		tradeCache *cache.RedisCache
		toggles    *flags.Store
	)
	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unavailable, trade feed and toggles disabled")
		_ = rclient.Close()
	} else {
		tradeCache = cache.NewRedisCacheFromClient(rclient, logger)
		toggles, err = flags.NewStore(rclient)
		if err != nil {
			logger.WithError(err).Fatal("failed to create toggle store")
		}
	}

	// ClickHouse is optional; without it trades are only kept in redis.
	var tradeStore *cache.ClickHouseStore
	chStore, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Warn("clickhouse unavailable, trade history disabled")
	} else {
		tradeStore = chStore
		defer tradeStore.Close()
	}

	// Purchase pipeline and conversational front
	pipeCfg := pipeline.Config{
		Wallets: wallets,
		Signer:  signer,
		AMM:     amm,
		Ledger:  positions,
		Logger:  logger,
	}
	if tradeCache != nil {
		pipeCfg.TradeCache = tradeCache
	}
	if tradeStore != nil {
		pipeCfg.TradeStore = tradeStore
	}
	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to create purchase pipeline")
	}

	purchases, err := conversation.NewController(conversation.Config{
		Catalog:  asset.Default(),
		Wallets:  wallets,
		Executor: pipe,
		OrderTTL: cfg.OrderTTL,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create purchase controller")
	}

	// Initialize AI agent for natural language queries (optional)
	var agent *ai.Agent
	aiBase := ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              cfg.AIModel,
		Logger:             logger,
	}
	if cfg.OpenRouterAPIKey != "" {
		a, err := ai.NewAgent(ctx, aiBase)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			agent = a
			defer func() {
				_ = agent.Close() // Clean up AI resources on shutdown
			}()
		}
	}

	// Create handlers with all dependencies injected
	h := &server.Handlers{
		Catalog:      asset.Default(),
		Purchases:    purchases,
		Wallets:      wallets,
		Positions:    positions,
		Toggles:      toggles,
		AI:           agent,
		AIBaseConfig: aiBase,
		DevMode:      cfg.DevMode,
		Logger:       logger,
	}
	if tradeCache != nil {
		h.Cache = tradeCache
	}

	// Create HTTP server with configuration and handlers
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh // Wait for shutdown signal
		logger.Info("shutting down")
		cancel()                               // Cancel context to stop ongoing operations
		_ = srv.Shutdown(context.Background()) // Gracefully shutdown HTTP server
	}()

	// Start the HTTP server
	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		// "http: Server closed" is expected during graceful shutdown
		if err.Error() == "http: Server closed" {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	// Wait for server to be fully shut down
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer waitCancel()
	if err := srv.WaitClosed(waitCtx); err != nil {
		fmt.Println(err)
	}
}
