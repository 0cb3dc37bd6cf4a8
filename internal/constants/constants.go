package constants

import "time"

// Redis keys
const (
	RedisKeyRecentTrades = "trades:recent"
)

// Redis Pub/Sub channels
const (
	PubSubChannelTrades = "trades:live"
)

// Limits
const (
	MaxRecentTrades = 100
)

// Defaults for the order pipeline
const (
	// How long a quote may age before building the swap is refused.
	DefaultOrderTTL = 60 * time.Second
)

// DexName identifies the AMM behind every trade this bot executes.
const DexName = "Mira"
