package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/constants"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/models"
)

// RedisCache keeps the hot trade feed: a capped recent-trades list plus a
// pub/sub channel for live consumers.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

// RedisConfig holds connection settings for the cache.
type RedisConfig struct {
	Addr   string
	DB     int
	Logger *logrus.Logger
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.Logger), nil
}

// NewRedisCacheFromClient wraps an existing client; the cache owns closing it.
func NewRedisCacheFromClient(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

// AddRecentTrade pushes a trade onto the recent list, trimming to the cap.
func (r *RedisCache) AddRecentTrade(ctx context.Context, trade *models.TradeEvent) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentTrades, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentTrades, 0, constants.MaxRecentTrades-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent trade: %w", err)
	}
	return nil
}

// GetRecentTrades returns up to limit most recent trades, newest first.
func (r *RedisCache) GetRecentTrades(ctx context.Context, limit int64) ([]*models.TradeEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentTrades {
		limit = constants.MaxRecentTrades
	}

	vals, err := r.client.LRange(ctx, constants.RedisKeyRecentTrades, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get recent trades: %w", err)
	}

	out := make([]*models.TradeEvent, 0, len(vals))
	for _, v := range vals {
		var t models.TradeEvent
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			r.logger.WithError(err).Warn("skipping malformed trade in recent list")
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

// PublishTrade publishes a trade to the live channel.
func (r *RedisCache) PublishTrade(ctx context.Context, trade *models.TradeEvent) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := r.client.Publish(ctx, constants.PubSubChannelTrades, data).Err(); err != nil {
		return fmt.Errorf("publish trade: %w", err)
	}
	return nil
}

// SubscribeTrades subscribes to the live channel. The returned channel closes
// when ctx is cancelled.
func (r *RedisCache) SubscribeTrades(ctx context.Context) (<-chan *models.TradeEvent, error) {
	pubsub := r.client.Subscribe(ctx, constants.PubSubChannelTrades)

	// Confirm the subscription before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe trades: %w", err)
	}

	out := make(chan *models.TradeEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var t models.TradeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
					r.logger.WithError(err).Warn("skipping malformed trade message")
					continue
				}
				select {
				case out <- &t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks if the cache is reachable.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
