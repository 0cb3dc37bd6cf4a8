package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/config"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/conversation"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/mira"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/pipeline"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/rpc"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

// One-shot CLI for the buy flow: quote the cost of an exact-output purchase,
// or run a full buy for a chat's wallet.
func main() {
	loadEnv()

	mode := flag.String("mode", "quote", "quote | buy")
	chatID := flag.Int64("chat", 0, "chat id owning the wallet")
	assetArg := flag.String("asset", "USDT", "asset symbol or 0x-prefixed asset id")
	amt := flag.String("amt", "", "amount to buy in human units (e.g. 10)")
	flag.Parse()

	if *amt == "" {
		fmt.Println("missing -amt")
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	catalog := asset.Default()
	target, err := catalog.Resolve(*assetArg)
	if err != nil {
		fmt.Println("unsupported asset:", *assetArg)
		os.Exit(2)
	}

	amm := mira.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.NodeRPCURL,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	defer amm.Close()

	switch *mode {
	case "quote":
		human, err := strconv.ParseFloat(*amt, 64)
		if err != nil || human <= 0 {
			fmt.Println("invalid -amt (must be a positive number)")
			os.Exit(2)
		}
		amountOut := uint64(human * pow10(target.Decimals))
		path := mira.DirectPath(asset.Base.AssetID, target.AssetID)
		required, err := amm.PreviewSwapExactOutput(ctx, target.AssetID, amountOut, path)
		if err != nil {
			fmt.Println("quote failed:", err)
			os.Exit(1)
		}
		fmt.Printf("asset=%s amount_out=%d required_input=%d (%s %s)\n",
			target.Symbol, amountOut, required, pipeline.FormatBaseUnits(required), asset.Base.Symbol)

	case "buy":
		if *chatID == 0 {
			fmt.Println("missing -chat (required for buy)")
			os.Exit(2)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Println("invalid configuration:", err)
			os.Exit(1)
		}

		signer, err := wallet.NewSigner(cfg.EncryptionKey)
		if err != nil {
			fmt.Println("invalid encryption key:", err)
			os.Exit(1)
		}
		wallets, err := wallet.NewSQLStore(ctx, wallet.StoreConfig{Path: cfg.WalletDBPath, Signer: signer, Logger: logger})
		if err != nil {
			fmt.Println("failed to open wallet store:", err)
			os.Exit(1)
		}
		defer wallets.Close()

		positions, err := ledger.NewStore(ctx, ledger.StoreConfig{Path: cfg.LedgerDBPath, Logger: logger})
		if err != nil {
			fmt.Println("failed to open position ledger:", err)
			os.Exit(1)
		}
		defer positions.Close()

		pipe, err := pipeline.New(pipeline.Config{
			Wallets: wallets,
			Signer:  signer,
			AMM:     amm,
			Ledger:  positions,
			Logger:  logger,
		})
		if err != nil {
			fmt.Println("failed to create pipeline:", err)
			os.Exit(1)
		}

		purchases, err := conversation.NewController(conversation.Config{
			Catalog:  catalog,
			Wallets:  wallets,
			Executor: pipe,
			OrderTTL: cfg.OrderTTL,
			Logger:   logger,
		})
		if err != nil {
			fmt.Println("failed to create purchase controller:", err)
			os.Exit(1)
		}

		if _, err := purchases.StartPurchase(ctx, *chatID, target.Symbol); err != nil {
			fmt.Println("failed to start purchase:", err)
			os.Exit(1)
		}
		res, err := purchases.SubmitAmount(ctx, *chatID, *amt)
		if err != nil {
			fmt.Println("buy failed:", err)
			os.Exit(1)
		}
		if !res.Success {
			fmt.Printf("aborted reason=%s detail=%q\n", res.Reason, res.Detail)
			os.Exit(1)
		}
		fmt.Printf("success tx=%s spent=%s %s fee=%s %s bought=%d %s\n",
			res.TxID,
			pipeline.FormatBaseUnits(res.AmountSpent), asset.Base.Symbol,
			pipeline.FormatBaseUnits(res.Fee), asset.Base.Symbol,
			res.AmountBought, target.Symbol)
		if res.Position != nil {
			fmt.Printf("holding %s %s\n", res.Position.HumanAmount(), res.Position.AssetSymbol)
		}

	default:
		fmt.Println("invalid -mode (use quote|buy)")
		os.Exit(2)
	}
}

func pow10(decimals uint8) float64 {
	out := 1.0
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out
}
