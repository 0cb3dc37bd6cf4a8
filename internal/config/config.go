package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Node RPC settings
	NodeRPCURL string

	// Wallet settings
	EncryptionKey string // hex-encoded 32-byte AES key for wallet secrets
	WalletDBPath  string
	LedgerDBPath  string

	// Order settings
	OrderTTL time.Duration

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// API server settings
	APIAddr string
	APIKey  string
	DevMode bool

	// AI settings
	OpenRouterAPIKey string
	AIModel          string
}

func Load() *Config {
	return &Config{
		// Node
		NodeRPCURL: getEnv("NODE_RPC_URL", "http://localhost:4000/v1/rpc"),

		// Wallets and holdings
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		WalletDBPath:  getEnv("WALLET_DB_PATH", "wallets.db"),
		LedgerDBPath:  getEnv("LEDGER_DB_PATH", "ledger.db"),

		// Orders
		OrderTTL: getDurationEnv("ORDER_TTL", 60*time.Second),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// API server
		APIAddr: getEnv("API_ADDR", ":8090"),
		APIKey:  getEnv("API_KEY", ""),
		DevMode: getBoolEnv("DEV_MODE", false),

		// AI
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", ""),
	}
}

// Validate checks the settings every trading process needs before it can
// touch a wallet.
func (c *Config) Validate() error {
	if c.NodeRPCURL == "" {
		return fmt.Errorf("NODE_RPC_URL is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
