package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/models"
)

// TradeCache defines the interface for the hot trade feed
type TradeCache interface {
	// AddRecentTrade adds a trade to the recent trades list
	AddRecentTrade(ctx context.Context, trade *models.TradeEvent) error

	// GetRecentTrades retrieves the most recent trades
	GetRecentTrades(ctx context.Context, limit int64) ([]*models.TradeEvent, error)

	// PublishTrade publishes a trade event to the Pub/Sub channel
	PublishTrade(ctx context.Context, trade *models.TradeEvent) error

	// SubscribeTrades subscribes to real-time trade events
	SubscribeTrades(ctx context.Context) (<-chan *models.TradeEvent, error)

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	// Close closes the cache connection
	io.Closer
}

// TradeStore defines the interface for durable trade storage
type TradeStore interface {
	// InsertTrade inserts a trade event into the store
	InsertTrade(ctx context.Context, trade *models.TradeEvent) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}
