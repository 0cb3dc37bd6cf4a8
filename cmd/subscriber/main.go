package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/cache"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/config"
)

// Example consumer for the live trade feed. Prints every completed buy as it
// is published.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	feed, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:   cfg.RedisAddr,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer feed.Close()

	trades, err := feed.SubscribeTrades(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to subscribe to trade feed")
	}

	logger.Info("trade subscriber running, press Ctrl+C to stop")

	for {
		select {
		case <-sigCh:
			logger.Info("shutting down subscriber")
			return
		case trade, ok := <-trades:
			if !ok {
				logger.Info("trade feed closed")
				return
			}
			logger.WithFields(logrus.Fields{
				"tx_id":      trade.TxID,
				"pair":       trade.Pair,
				"amount_in":  trade.AmountIn,
				"amount_out": trade.AmountOut,
				"fee":        trade.Fee,
				"wallet":     trade.WalletID,
			}).Info("trade")
		}
	}
}
