package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/models"
)

// ClickHouseStore is the durable trade log backing analytics queries.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

// ClickHouseConfig holds connection settings for the trade store.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
	tx_id        String,
	timestamp    DateTime,
	pair         String,
	asset_in     String,
	asset_out    String,
	amount_in    UInt64,
	amount_out   UInt64,
	fee          UInt64,
	out_decimals UInt8,
	wallet_id    String,
	pool         String,
	dex          String
) ENGINE = MergeTree()
ORDER BY (timestamp, tx_id)
`

// NewClickHouseStore connects to ClickHouse and ensures the trades table.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, tradesSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure trades schema: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: cfg.Logger}, nil
}

// InsertTrade writes one completed buy to the trades table.
func (c *ClickHouseStore) InsertTrade(ctx context.Context, trade *models.TradeEvent) error {
	query := `
		INSERT INTO trades (
			tx_id, timestamp, pair, asset_in, asset_out,
			amount_in, amount_out, fee, out_decimals, wallet_id, pool, dex
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		trade.TxID,
		trade.Timestamp,
		trade.Pair,
		trade.AssetIn,
		trade.AssetOut,
		trade.AmountIn,
		trade.AmountOut,
		trade.Fee,
		trade.OutDecimals,
		trade.WalletID,
		trade.Pool,
		trade.Dex,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// Ping checks if the store is reachable.
func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the connection.
func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
