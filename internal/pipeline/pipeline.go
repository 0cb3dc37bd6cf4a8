package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/constants"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/mira"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/models"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/storage"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

// PurchaseOrder is one user request to buy a fixed amount of an asset with the
// base asset. RawAmount is the user's text, parsed exactly once inside Execute.
type PurchaseOrder struct {
	ChatID    int64
	Asset     asset.Descriptor
	RawAmount string
	Deadline  time.Time

	executed atomic.Bool
}

// Collaborator boundaries. The Mira client satisfies all of them; tests swap
// in fakes per stage.

type QuoteProvider interface {
	PreviewSwapExactOutput(ctx context.Context, assetOut string, amountOut uint64, path []mira.PoolID) (uint64, error)
}

type TransactionBuilder interface {
	BuildSwapExactOutput(ctx context.Context, sender, assetOut string, amountOut, maxInput uint64, path []mira.PoolID, deadline time.Time) (*mira.DraftTransaction, error)
}

type FeeEstimator interface {
	EstimateFee(ctx context.Context, tx *mira.DraftTransaction) (uint64, error)
}

type BalanceSource interface {
	Balance(ctx context.Context, owner, assetID string) (uint64, error)
}

type Simulator interface {
	DryRun(ctx context.Context, tx *mira.DraftTransaction) (*mira.DryRunResult, error)
}

type Submitter interface {
	Submit(ctx context.Context, tx *mira.DraftTransaction) (string, error)
}

// PositionLedger records completed buys.
type PositionLedger interface {
	Accumulate(ctx context.Context, walletID string, a asset.Descriptor, delta *big.Int) (*ledger.Position, error)
}

// Pipeline drives one purchase order through its ordered stages. Every stage
// is a hard gate: a failed stage aborts the order, no later stage runs, and no
// state is written.
type Pipeline struct {
	wallets   wallet.Store
	signer    *wallet.Signer
	quotes    QuoteProvider
	builder   TransactionBuilder
	fees      FeeEstimator
	balances  BalanceSource
	simulator Simulator
	submitter Submitter
	ledger    PositionLedger

	// Optional; trade events are published best-effort after submission.
	tradeCache storage.TradeCache
	tradeStore storage.TradeStore

	logger *logrus.Logger
}

// Config carries the pipeline's collaborators. Wallets, Signer, AMM and Ledger
// are required; TradeCache and TradeStore may be nil.
type Config struct {
	Wallets    wallet.Store
	Signer     *wallet.Signer
	AMM        AMMClient
	Ledger     PositionLedger
	TradeCache storage.TradeCache
	TradeStore storage.TradeStore
	Logger     *logrus.Logger
}

// AMMClient bundles the swap-facing collaborators implemented by one client.
type AMMClient interface {
	QuoteProvider
	TransactionBuilder
	FeeEstimator
	BalanceSource
	Simulator
	Submitter
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Wallets == nil || cfg.Signer == nil || cfg.AMM == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("pipeline: wallets, signer, AMM and ledger are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		wallets:    cfg.Wallets,
		signer:     cfg.Signer,
		quotes:     cfg.AMM,
		builder:    cfg.AMM,
		fees:       cfg.AMM,
		balances:   cfg.AMM,
		simulator:  cfg.AMM,
		submitter:  cfg.AMM,
		ledger:     cfg.Ledger,
		tradeCache: cfg.TradeCache,
		tradeStore: cfg.TradeStore,
		logger:     logger,
	}, nil
}

// Execute runs the order through validate, resolve, quote, build, balance
// gate, simulate, submit, and ledger update. It returns a tagged Result; an
// error return is reserved for misuse (nil or reused order).
func (p *Pipeline) Execute(ctx context.Context, order *PurchaseOrder) (*Result, error) {
	if order == nil {
		return nil, fmt.Errorf("order is nil")
	}
	// One submission per order, even if a caller retries the same handle.
	if !order.executed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("order for chat %d already executed", order.ChatID)
	}

	log := p.logger.WithFields(logrus.Fields{
		"chat_id": order.ChatID,
		"asset":   order.Asset.Symbol,
	})

	// Stage 1: amount validation. The only float parse on the whole path.
	amount, err := parseAmount(order.RawAmount)
	if err != nil {
		return aborted(ReasonInvalidAmount, err.Error()), nil
	}
	amountOut, err := toSmallestUnits(amount, order.Asset.Decimals)
	if err != nil {
		return aborted(ReasonInvalidAmount, err.Error()), nil
	}

	// Stage 2: resolve the signing wallet.
	rec, err := p.wallets.GetByChat(ctx, order.ChatID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			log.Error("purchase order reached execution without a wallet")
			return aborted(ReasonWalletNotFound, "no wallet for this chat"), nil
		}
		return aborted(ReasonProvider, fmt.Sprintf("wallet lookup: %v", err)), nil
	}
	handle, err := p.signer.Decrypt(rec.EncryptedSecret)
	if err != nil {
		log.WithError(err).Error("wallet secret failed to decrypt")
		return aborted(ReasonProvider, "wallet secret unavailable"), nil
	}

	// Stage 3: quote the required input for the exact output.
	path := mira.DirectPath(asset.Base.AssetID, order.Asset.AssetID)
	requiredInput, err := p.quotes.PreviewSwapExactOutput(ctx, order.Asset.AssetID, amountOut, path)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("quote: %v", err)), nil
	}

	// Stage 4: build the draft and price it. The quote above is only valid
	// until the order's deadline.
	if !order.Deadline.After(time.Now()) {
		return aborted(ReasonDeadlineExceeded, "order deadline elapsed, re-quote and retry"), nil
	}
	draft, err := p.builder.BuildSwapExactOutput(ctx, handle.Address(), order.Asset.AssetID, amountOut, requiredInput, path, order.Deadline)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("build swap: %v", err)), nil
	}
	fee, err := p.fees.EstimateFee(ctx, draft)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("estimate fee: %v", err)), nil
	}
	draft.MaxFee = fee

	// Stage 5: balance gate over quote + fee.
	available, err := p.balances.Balance(ctx, handle.Address(), asset.Base.AssetID)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("balance: %v", err)), nil
	}
	required := requiredOutlay(requiredInput, fee)
	if !Sufficient(available, required) {
		res := aborted(ReasonInsufficientBalance, fmt.Sprintf(
			"need %s %s (incl. fee), have %s",
			FormatBaseUnits(required), asset.Base.Symbol, FormatBaseUnits(available),
		))
		res.Available = available
		res.Required = required
		return res, nil
	}

	// Stage 6: dry run against current chain state.
	sim, err := p.simulator.DryRun(ctx, draft)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("dry run: %v", err)), nil
	}
	if !sim.Succeeded() {
		log.WithFields(logrus.Fields{
			"status":   sim.Status,
			"reason":   sim.Reason,
			"receipts": sim.Receipts,
		}).Warn("dry run rejected transaction")
		detail := sim.Reason
		if detail == "" {
			detail = "simulation did not succeed"
		}
		return aborted(ReasonSimulationFailed, detail), nil
	}

	// Stage 7: sign and submit. Past this point the spend is final.
	payload, err := json.Marshal(draft)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("encode transaction: %v", err)), nil
	}
	draft.Signature = handle.Sign(payload)

	txID, err := p.submitter.Submit(ctx, draft)
	if err != nil {
		return aborted(ReasonProvider, fmt.Sprintf("submit: %v", err)), nil
	}

	log.WithFields(logrus.Fields{
		"tx_id":  txID,
		"spent":  requiredInput,
		"fee":    fee,
		"bought": amountOut,
	}).Info("swap submitted")

	// Stage 8: record the buy. The transaction is already on chain, so a
	// ledger failure is logged and surfaced but never turns the result into
	// an abort.
	result := &Result{
		Success:      true,
		TxID:         txID,
		AmountSpent:  requiredInput,
		Fee:          fee,
		AmountBought: amountOut,
	}
	pos, err := p.ledger.Accumulate(ctx, rec.ID, order.Asset, new(big.Int).SetUint64(amountOut))
	if err != nil {
		log.WithError(err).WithField("tx_id", txID).Error("position update failed after submission")
		result.Detail = "position update failed, holdings will lag until the next buy"
	} else {
		result.Position = pos
	}

	p.publishTrade(ctx, order, rec.ID, txID, requiredInput, amountOut, fee, path)

	return result, nil
}

// publishTrade pushes the completed buy to the live feed and the analytics
// store. Best-effort: failures are logged and never affect the result.
func (p *Pipeline) publishTrade(ctx context.Context, order *PurchaseOrder, walletID, txID string, amountIn, amountOut, fee uint64, path []mira.PoolID) {
	if p.tradeCache == nil && p.tradeStore == nil {
		return
	}

	ev := &models.TradeEvent{
		TxID:        txID,
		Timestamp:   time.Now().UTC(),
		Pair:        fmt.Sprintf("%s-%s", asset.Base.Symbol, order.Asset.Symbol),
		AssetIn:     asset.Base.AssetID,
		AssetOut:    order.Asset.AssetID,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Fee:         fee,
		OutDecimals: order.Asset.Decimals,
		WalletID:    walletID,
		Pool:        path[0].String(),
		Dex:         constants.DexName,
	}

	if p.tradeCache != nil {
		if err := p.tradeCache.AddRecentTrade(ctx, ev); err != nil {
			p.logger.WithError(err).Warn("failed to cache trade event")
		}
		if err := p.tradeCache.PublishTrade(ctx, ev); err != nil {
			p.logger.WithError(err).Warn("failed to publish trade event")
		}
	}
	if p.tradeStore != nil {
		if err := p.tradeStore.InsertTrade(ctx, ev); err != nil {
			p.logger.WithError(err).Warn("failed to store trade event")
		}
	}
}
