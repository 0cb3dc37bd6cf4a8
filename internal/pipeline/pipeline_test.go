package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/mira"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

const testEncryptionKey = "aAbBcCdDeEfF00112233445566778899aabbccddeeff00112233445566778899"

// fakeAMM scripts each stage and counts calls so tests can assert which gates
// ran and, critically, that submission never happens after a failed gate.
type fakeAMM struct {
	requiredInput uint64
	quoteErr      error

	fee    uint64
	feeErr error

	balance    uint64
	balanceErr error

	dryRun    *mira.DryRunResult
	dryRunErr error

	txID      string
	submitErr error

	quoteCalls   int
	feeCalls     int
	balanceCalls int
	dryRunCalls  int
	submitCalls  int
}

func (f *fakeAMM) PreviewSwapExactOutput(ctx context.Context, assetOut string, amountOut uint64, path []mira.PoolID) (uint64, error) {
	f.quoteCalls++
	return f.requiredInput, f.quoteErr
}

func (f *fakeAMM) BuildSwapExactOutput(ctx context.Context, sender, assetOut string, amountOut, maxInput uint64, path []mira.PoolID, deadline time.Time) (*mira.DraftTransaction, error) {
	return &mira.DraftTransaction{
		Sender:    sender,
		AssetOut:  assetOut,
		AmountOut: amountOut,
		MaxInput:  maxInput,
		Path:      path,
		Deadline:  deadline.Unix(),
	}, nil
}

func (f *fakeAMM) EstimateFee(ctx context.Context, tx *mira.DraftTransaction) (uint64, error) {
	f.feeCalls++
	return f.fee, f.feeErr
}

func (f *fakeAMM) Balance(ctx context.Context, owner, assetID string) (uint64, error) {
	f.balanceCalls++
	return f.balance, f.balanceErr
}

func (f *fakeAMM) DryRun(ctx context.Context, tx *mira.DraftTransaction) (*mira.DryRunResult, error) {
	f.dryRunCalls++
	if f.dryRunErr != nil {
		return nil, f.dryRunErr
	}
	if f.dryRun != nil {
		return f.dryRun, nil
	}
	return &mira.DryRunResult{Status: mira.DryRunSuccess}, nil
}

func (f *fakeAMM) Submit(ctx context.Context, tx *mira.DraftTransaction) (string, error) {
	f.submitCalls++
	if tx.Signature == "" {
		return "", fmt.Errorf("unsigned transaction reached submit")
	}
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.txID, nil
}

type fakeLedger struct {
	calls     int
	walletID  string
	asset     asset.Descriptor
	delta     *big.Int
	err       error
	positions map[string]*big.Int
}

func (f *fakeLedger) Accumulate(ctx context.Context, walletID string, a asset.Descriptor, delta *big.Int) (*ledger.Position, error) {
	f.calls++
	f.walletID = walletID
	f.asset = a
	f.delta = new(big.Int).Set(delta)
	if f.err != nil {
		return nil, f.err
	}
	if f.positions == nil {
		f.positions = make(map[string]*big.Int)
	}
	key := walletID + "/" + a.AssetID
	if f.positions[key] == nil {
		f.positions[key] = new(big.Int)
	}
	f.positions[key].Add(f.positions[key], delta)
	return &ledger.Position{
		ID:          "pos-1",
		WalletID:    walletID,
		AssetID:     a.AssetID,
		AssetSymbol: a.Symbol,
		Decimals:    a.Decimals,
		Amount:      new(big.Int).Set(f.positions[key]),
		UpdatedAt:   time.Now(),
	}, nil
}

type fakeWalletStore struct {
	rec *wallet.Record
	err error
}

func (f *fakeWalletStore) GetByChat(ctx context.Context, chatID int64) (*wallet.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeWalletStore) GetOrCreate(ctx context.Context, chatID int64) (*wallet.Record, error) {
	return f.GetByChat(ctx, chatID)
}

func mustUSDT(t *testing.T) asset.Descriptor {
	t.Helper()
	a, err := asset.Default().Resolve("USDT")
	require.NoError(t, err)
	return a
}

func testSetup(t *testing.T, amm *fakeAMM) (*Pipeline, *fakeLedger, *wallet.Record) {
	t.Helper()

	signer, err := wallet.NewSigner(testEncryptionKey)
	require.NoError(t, err)

	secret, address, err := wallet.GenerateKey()
	require.NoError(t, err)
	encrypted, err := signer.Encrypt(secret)
	require.NoError(t, err)

	rec := &wallet.Record{
		ID:              "wallet-1",
		ChatID:          42,
		Address:         address,
		EncryptedSecret: encrypted,
		CreatedAt:       time.Now(),
	}

	led := &fakeLedger{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	p, err := New(Config{
		Wallets: &fakeWalletStore{rec: rec},
		Signer:  signer,
		AMM:     amm,
		Ledger:  led,
		Logger:  logger,
	})
	require.NoError(t, err)
	return p, led, rec
}

func newOrder(a asset.Descriptor, raw string) *PurchaseOrder {
	return &PurchaseOrder{
		ChatID:    42,
		Asset:     a,
		RawAmount: raw,
		Deadline:  time.Now().Add(time.Minute),
	}
}

func TestExecute_SuccessfulBuy(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
		txID:          "0xabc",
	}
	p, led, rec := testSetup(t, amm)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "0xabc", res.TxID)
	assert.Equal(t, uint64(2_000_000_000), res.AmountSpent)
	assert.Equal(t, uint64(10_000), res.Fee)
	assert.Equal(t, uint64(10_000_000), res.AmountBought) // 10 USDT at 6 decimals

	assert.Equal(t, 1, amm.submitCalls)
	assert.Equal(t, 1, led.calls)
	assert.Equal(t, rec.ID, led.walletID)
	assert.Equal(t, "10000000", led.delta.String())
	require.NotNil(t, res.Position)
	assert.Equal(t, "10", res.Position.HumanAmount())
}

func TestExecute_InvalidAmounts(t *testing.T) {
	cases := []string{"", "abc", "-5", "0", "NaN", "Inf", "1e9999"}

	for _, raw := range cases {
		t.Run(fmt.Sprintf("%q", raw), func(t *testing.T) {
			amm := &fakeAMM{}
			p, led, _ := testSetup(t, amm)

			res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), raw))
			require.NoError(t, err)

			assert.False(t, res.Success)
			assert.Equal(t, ReasonInvalidAmount, res.Reason)
			assert.Equal(t, 0, amm.quoteCalls, "no quote after rejected amount")
			assert.Equal(t, 0, amm.submitCalls)
			assert.Equal(t, 0, led.calls)
		})
	}
}

func TestExecute_AmountRoundsToZero(t *testing.T) {
	amm := &fakeAMM{}
	p, _, _ := testSetup(t, amm)

	// 1e-9 USDT is below one 6-decimal unit.
	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "0.000000001"))
	require.NoError(t, err)

	assert.Equal(t, ReasonInvalidAmount, res.Reason)
	assert.Equal(t, 0, amm.quoteCalls)
}

func TestExecute_WalletNotFound(t *testing.T) {
	amm := &fakeAMM{}
	signer, err := wallet.NewSigner(testEncryptionKey)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	p, err := New(Config{
		Wallets: &fakeWalletStore{err: wallet.ErrNotFound},
		Signer:  signer,
		AMM:     amm,
		Ledger:  &fakeLedger{},
		Logger:  logger,
	})
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.Equal(t, ReasonWalletNotFound, res.Reason)
	assert.Equal(t, 0, amm.quoteCalls)
	assert.Equal(t, 0, amm.submitCalls)
}

func TestExecute_InsufficientBalance(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       2_000_000_000, // short by exactly the fee
	}
	p, led, _ := testSetup(t, amm)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, uint64(2_000_000_000), res.Available)
	assert.Equal(t, uint64(2_000_010_000), res.Required)
	assert.Contains(t, res.Detail, "2.00001")

	assert.Equal(t, 0, amm.dryRunCalls, "no simulation after failed balance gate")
	assert.Equal(t, 0, amm.submitCalls)
	assert.Equal(t, 0, led.calls, "ledger untouched on abort")
}

func TestExecute_ExactBalancePasses(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       2_000_010_000, // exactly quote + fee
		txID:          "0xdef",
	}
	p, _, _ := testSetup(t, amm)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, amm.submitCalls)
}

func TestExecute_SimulationFailure(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
		dryRun:        &mira.DryRunResult{Status: mira.DryRunFailure, Reason: "slippage exceeded"},
	}
	p, led, _ := testSetup(t, amm)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.Equal(t, ReasonSimulationFailed, res.Reason)
	assert.Contains(t, res.Detail, "slippage exceeded")
	assert.Equal(t, 0, amm.submitCalls, "failed simulation must block submission")
	assert.Equal(t, 0, led.calls)
}

func TestExecute_AmbiguousSimulationCountsAsFailure(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
		dryRun:        &mira.DryRunResult{Status: ""},
	}
	p, _, _ := testSetup(t, amm)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.Equal(t, ReasonSimulationFailed, res.Reason)
	assert.Equal(t, 0, amm.submitCalls)
}

func TestExecute_ProviderErrors(t *testing.T) {
	boom := fmt.Errorf("node unreachable")

	cases := []struct {
		name string
		amm  *fakeAMM
	}{
		{"quote", &fakeAMM{quoteErr: boom}},
		{"fee", &fakeAMM{requiredInput: 1, feeErr: boom}},
		{"balance", &fakeAMM{requiredInput: 1, fee: 1, balanceErr: boom}},
		{"dry_run", &fakeAMM{requiredInput: 1, fee: 1, balance: 10, dryRunErr: boom}},
		{"submit", &fakeAMM{requiredInput: 1, fee: 1, balance: 10, submitErr: boom}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, led, _ := testSetup(t, tc.amm)

			res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
			require.NoError(t, err)

			assert.False(t, res.Success)
			assert.Equal(t, ReasonProvider, res.Reason)
			assert.Equal(t, 0, led.calls)
		})
	}
}

func TestExecute_DeadlineExceeded(t *testing.T) {
	amm := &fakeAMM{requiredInput: 2_000_000_000}
	p, _, _ := testSetup(t, amm)

	order := newOrder(mustUSDT(t), "10")
	order.Deadline = time.Now().Add(-time.Second)

	res, err := p.Execute(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, ReasonDeadlineExceeded, res.Reason)
	assert.Equal(t, 0, amm.submitCalls)
}

func TestExecute_OrderIsSingleUse(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
		txID:          "0xabc",
	}
	p, _, _ := testSetup(t, amm)

	order := newOrder(mustUSDT(t), "10")
	res, err := p.Execute(context.Background(), order)
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = p.Execute(context.Background(), order)
	assert.Error(t, err, "re-executing the same order must be refused")
	assert.Equal(t, 1, amm.submitCalls)
}

func TestExecute_LedgerFailureAfterSubmitStaysSuccess(t *testing.T) {
	amm := &fakeAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
		txID:          "0xabc",
	}
	signer, err := wallet.NewSigner(testEncryptionKey)
	require.NoError(t, err)

	secret, address, err := wallet.GenerateKey()
	require.NoError(t, err)
	encrypted, err := signer.Encrypt(secret)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	led := &fakeLedger{err: fmt.Errorf("db locked")}
	p, err := New(Config{
		Wallets: &fakeWalletStore{rec: &wallet.Record{
			ID: "wallet-1", ChatID: 42, Address: address, EncryptedSecret: encrypted,
		}},
		Signer: signer,
		AMM:    amm,
		Ledger: led,
		Logger: logger,
	})
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), newOrder(mustUSDT(t), "10"))
	require.NoError(t, err)

	assert.True(t, res.Success, "submitted transaction stays a success")
	assert.Equal(t, "0xabc", res.TxID)
	assert.Nil(t, res.Position)
	assert.NotEmpty(t, res.Detail)
}

func TestFormatBaseUnits(t *testing.T) {
	assert.Equal(t, "1.5", FormatBaseUnits(1_500_000_000))
	assert.Equal(t, "2.00001", FormatBaseUnits(2_000_010_000))
	assert.Equal(t, "0", FormatBaseUnits(0))
}

func TestSufficient(t *testing.T) {
	assert.True(t, Sufficient(100, 100))
	assert.True(t, Sufficient(101, 100))
	assert.False(t, Sufficient(99, 100))
}

func TestRequiredOutlaySaturates(t *testing.T) {
	assert.Equal(t, maxUint64, requiredOutlay(maxUint64, 1))
	assert.Equal(t, uint64(30), requiredOutlay(10, 20))
}
