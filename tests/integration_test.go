package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/cache"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/conversation"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/flags"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/mira"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/pipeline"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/server"
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/wallet"
)

const (
	testAPIAddr = ":8091"
	testBaseURL = "http://localhost:8091"
	testAPIKey  = "test-api-key-integration"
	testEncKey  = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
)

// stubAMM answers every node call with fixed values so the full buy flow can
// run over HTTP without a chain.
type stubAMM struct {
	requiredInput uint64
	fee           uint64
	balance       uint64
	submits       int
}

func (s *stubAMM) PreviewSwapExactOutput(ctx context.Context, assetOut string, amountOut uint64, path []mira.PoolID) (uint64, error) {
	return s.requiredInput, nil
}

func (s *stubAMM) BuildSwapExactOutput(ctx context.Context, sender, assetOut string, amountOut, maxInput uint64, path []mira.PoolID, deadline time.Time) (*mira.DraftTransaction, error) {
	return &mira.DraftTransaction{
		Sender:    sender,
		AssetOut:  assetOut,
		AmountOut: amountOut,
		MaxInput:  maxInput,
		Path:      path,
		Deadline:  deadline.Unix(),
	}, nil
}

func (s *stubAMM) EstimateFee(ctx context.Context, tx *mira.DraftTransaction) (uint64, error) {
	return s.fee, nil
}

func (s *stubAMM) Balance(ctx context.Context, owner, assetID string) (uint64, error) {
	return s.balance, nil
}

func (s *stubAMM) DryRun(ctx context.Context, tx *mira.DraftTransaction) (*mira.DryRunResult, error) {
	return &mira.DryRunResult{Status: mira.DryRunSuccess}, nil
}

func (s *stubAMM) Submit(ctx context.Context, tx *mira.DraftTransaction) (string, error) {
	s.submits++
	return fmt.Sprintf("0xtx%04d", s.submits), nil
}

func setupIntegrationTest(t *testing.T, amm *stubAMM) func() {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   2, // Use different DB for integration tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for integration tests: %v", err)
	}
	_ = redisClient.FlushDB(ctx).Err()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	signer, err := wallet.NewSigner(testEncKey)
	require.NoError(t, err)

	dir := t.TempDir()
	wallets, err := wallet.NewSQLStore(ctx, wallet.StoreConfig{
		Path:   filepath.Join(dir, "wallets.db"),
		Signer: signer,
		Logger: logger,
	})
	require.NoError(t, err)

	positions, err := ledger.NewStore(ctx, ledger.StoreConfig{
		Path:   filepath.Join(dir, "ledger.db"),
		Logger: logger,
	})
	require.NoError(t, err)

	tradeCache := cache.NewRedisCacheFromClient(redisClient, logger)
	toggles, err := flags.NewStore(redisClient)
	require.NoError(t, err)

	pipe, err := pipeline.New(pipeline.Config{
		Wallets:    wallets,
		Signer:     signer,
		AMM:        amm,
		Ledger:     positions,
		TradeCache: tradeCache,
		Logger:     logger,
	})
	require.NoError(t, err)

	purchases, err := conversation.NewController(conversation.Config{
		Catalog:  asset.Default(),
		Wallets:  wallets,
		Executor: pipe,
		OrderTTL: time.Minute,
		Logger:   logger,
	})
	require.NoError(t, err)

	handlers := &server.Handlers{
		Catalog:   asset.Default(),
		Purchases: purchases,
		Wallets:   wallets,
		Positions: positions,
		Cache:     tradeCache,
		Toggles:   toggles,
		DevMode:   true,
		Logger:    logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: handlers,
		Config: server.ServerConfig{
			Addr:    testAPIAddr,
			DevMode: true,
			APIKey:  testAPIKey,
		},
	})
	require.NoError(t, err)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			t.Logf("Server error: %v", err)
		}
	}()

	// Wait for server to be ready
	time.Sleep(100 * time.Millisecond)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(ctx)
		_ = wallets.Close()
		_ = positions.Close()
		_ = redisClient.FlushDB(ctx).Err()
		_ = redisClient.Close()
	}
}

func makeRequest(t *testing.T, method, url string, body interface{}, expectedStatus int) *http.Response {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)

	assert.Equal(t, expectedStatus, resp.StatusCode, "Expected status %d, got %d", expectedStatus, resp.StatusCode)

	return resp
}

func TestIntegration_Health(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/health", nil, http.StatusOK)
	defer resp.Body.Close()

	var response server.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.True(t, response.OK)
}

func TestIntegration_Assets(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/assets", nil, http.StatusOK)
	defer resp.Body.Close()

	var response struct {
		Items []asset.Descriptor `json:"items"`
		Base  asset.Descriptor   `json:"base"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))

	assert.Equal(t, "ETH", response.Base.Symbol)
	require.Len(t, response.Items, 2)
	assert.Equal(t, "USDT", response.Items[0].Symbol)
	assert.Equal(t, "BTC", response.Items[1].Symbol)
}

func TestIntegration_WalletBootstrap(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/wallets/4242", nil, http.StatusOK)
	defer resp.Body.Close()

	var first server.WalletResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	assert.Equal(t, int64(4242), first.ChatID)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", first.Address)

	// Same chat gets the same wallet back.
	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/wallets/4242", nil, http.StatusOK)
	defer resp.Body.Close()

	var second server.WalletResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Address, second.Address)
}

func TestIntegration_PurchaseFlow(t *testing.T) {
	amm := &stubAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       3_000_000_000,
	}
	cleanup := setupIntegrationTest(t, amm)
	defer cleanup()

	// Start a purchase dialogue for USDT.
	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 7, "asset": "usdt"}, http.StatusOK)
	defer resp.Body.Close()

	var session conversation.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, "USDT", session.Asset.Symbol)
	assert.Equal(t, conversation.StateAwaitingAmount, session.State)

	// Submit the amount; the stub node accepts everything.
	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/amount",
		map[string]any{"chat_id": 7, "amount": "10"}, http.StatusOK)
	defer resp.Body.Close()

	var result pipeline.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.TxID)
	assert.Equal(t, uint64(10_000_000), result.AmountBought)
	assert.Equal(t, 1, amm.submits)

	// The holding shows up under the wallet.
	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/wallets/7/positions", nil, http.StatusOK)
	defer resp.Body.Close()

	var positions struct {
		Items []*ledger.Position `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&positions))
	require.Len(t, positions.Items, 1)
	assert.Equal(t, "USDT", positions.Items[0].AssetSymbol)
	assert.Equal(t, "10", positions.Items[0].HumanAmount())

	// The trade landed on the live feed.
	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/trades/recent", nil, http.StatusOK)
	defer resp.Body.Close()

	var trades struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trades))
	require.Len(t, trades.Items, 1)
	assert.Equal(t, result.TxID, trades.Items[0]["tx_id"])

	// The session is consumed; a second amount has nothing to feed.
	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/amount",
		map[string]any{"chat_id": 7, "amount": "10"}, http.StatusNotFound)
	resp.Body.Close()
}

func TestIntegration_PurchaseAborts(t *testing.T) {
	amm := &stubAMM{
		requiredInput: 2_000_000_000,
		fee:           10_000,
		balance:       1_000, // nowhere near enough
	}
	cleanup := setupIntegrationTest(t, amm)
	defer cleanup()

	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 9, "asset": "BTC"}, http.StatusOK)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/amount",
		map[string]any{"chat_id": 9, "amount": "0.5"}, http.StatusOK)
	defer resp.Body.Close()

	var result pipeline.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, pipeline.ReasonInsufficientBalance, result.Reason)
	assert.Equal(t, 0, amm.submits)

	// Unsupported asset is rejected at start.
	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 9, "asset": "DOGE"}, http.StatusNotFound)
	resp.Body.Close()
}

func TestIntegration_PurchaseCancel(t *testing.T) {
	amm := &stubAMM{}
	cleanup := setupIntegrationTest(t, amm)
	defer cleanup()

	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 11, "asset": "USDT"}, http.StatusOK)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/cancel",
		map[string]any{"chat_id": 11}, http.StatusNoContent)
	resp.Body.Close()

	// Nothing reached the node and the dialogue is gone.
	assert.Equal(t, 0, amm.submits)
	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/purchase/11", nil, http.StatusNotFound)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/cancel",
		map[string]any{"chat_id": 11}, http.StatusNotFound)
	resp.Body.Close()
}

func TestIntegration_TradingKillSwitch(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	// Flip the kill switch.
	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/toggles",
		map[string]any{"key": flags.KeyTradingEnabled, "value": false, "note": "maintenance"}, http.StatusOK)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 13, "asset": "USDT"}, http.StatusServiceUnavailable)
	resp.Body.Close()

	// Deleting the toggle reopens trading.
	resp = makeRequest(t, http.MethodDelete, testBaseURL+"/v1/toggles/"+flags.KeyTradingEnabled, nil, http.StatusNoContent)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodPost, testBaseURL+"/v1/purchase/start",
		map[string]any{"chat_id": 13, "asset": "USDT"}, http.StatusOK)
	resp.Body.Close()
}

func TestIntegration_TogglesCRUD(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	resp := makeRequest(t, http.MethodPost, testBaseURL+"/v1/toggles",
		map[string]any{"key": "ops.feed", "value": true}, http.StatusOK)
	defer resp.Body.Close()

	var created flags.Toggle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "ops.feed", created.Key)
	assert.True(t, created.Value)

	resp = makeRequest(t, http.MethodPut, testBaseURL+"/v1/toggles/ops.feed",
		map[string]any{"value": false, "note": "paused"}, http.StatusOK)
	defer resp.Body.Close()

	var updated flags.Toggle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.False(t, updated.Value)
	assert.Equal(t, "paused", updated.Note)

	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/toggles", nil, http.StatusOK)
	defer resp.Body.Close()

	var list struct {
		Items []*flags.Toggle `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Items, 1)

	resp = makeRequest(t, http.MethodDelete, testBaseURL+"/v1/toggles/ops.feed", nil, http.StatusNoContent)
	resp.Body.Close()

	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/toggles/ops.feed", nil, http.StatusNotFound)
	resp.Body.Close()
}

func TestIntegration_Authentication(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	client := &http.Client{Timeout: 5 * time.Second}

	// Without API key
	req, err := http.NewRequest(http.MethodGet, testBaseURL+"/v1/health", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// With a wrong API key
	req, err = http.NewRequest(http.MethodGet, testBaseURL+"/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "invalid-key")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_ErrorHandling(t *testing.T) {
	cleanup := setupIntegrationTest(t, &stubAMM{})
	defer cleanup()

	resp := makeRequest(t, http.MethodGet, testBaseURL+"/v1/nonexistent", nil, http.StatusNotFound)
	defer resp.Body.Close()

	var errorResponse server.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errorResponse))
	assert.Equal(t, "not found", errorResponse.Error)
	assert.Equal(t, http.StatusNotFound, errorResponse.Code)

	// Recent trades limit validation
	resp = makeRequest(t, http.MethodGet, testBaseURL+"/v1/trades/recent?limit=500", nil, http.StatusBadRequest)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errorResponse))
	assert.Contains(t, errorResponse.Error, "invalid limit")
}
