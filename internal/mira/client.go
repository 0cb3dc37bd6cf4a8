package mira

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/rpc"
)

// Client provides AMM helpers over the node's JSON-RPC endpoint: exact-output
// quoting, fee estimation, dry runs, submission, and balance reads.
type Client struct {
	rpcClient *rpc.Client
}

// NewClient creates a Mira client using the project's RPC client
func NewClient(cfg rpc.ClientConfig) *Client {
	return &Client{rpcClient: rpc.NewClient(cfg)}
}

// Close releases client resources. The underlying HTTP client keeps no
// per-call state, so this is currently a no-op kept for symmetry.
func (c *Client) Close() error { return nil }

// PreviewSwapExactOutput asks the node how much input the pool path currently
// requires to produce amountOut of assetOut. Pool state moves between calls,
// so callers must not cache the result across orders.
func (c *Client) PreviewSwapExactOutput(ctx context.Context, assetOut string, amountOut uint64, path []PoolID) (uint64, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("preview_swap_exact_output: empty pool path")
	}

	var resp struct {
		Result struct {
			RequiredInput string `json:"required_input"`
		} `json:"result"`
		Error *rpc.RPCError `json:"error"`
	}

	params := map[string]any{
		"asset_out":  assetOut,
		"amount_out": strconv.FormatUint(amountOut, 10),
		"path":       path,
	}

	if err := c.rpcClient.Call(ctx, "preview_swap_exact_output", params, &resp); err != nil {
		return 0, fmt.Errorf("preview_swap_exact_output RPC failed: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("preview_swap_exact_output error: %s", resp.Error.Message)
	}

	required, err := strconv.ParseUint(resp.Result.RequiredInput, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid required_input %q: %w", resp.Result.RequiredInput, err)
	}
	return required, nil
}

// BuildSwapExactOutput assembles the draft transaction for a quoted swap.
// MaxFee stays zero until the fee estimator fills it in.
func (c *Client) BuildSwapExactOutput(ctx context.Context, sender, assetOut string, amountOut, maxInput uint64, path []PoolID, deadline time.Time) (*DraftTransaction, error) {
	if sender == "" {
		return nil, fmt.Errorf("build swap: sender is required")
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("build swap: empty pool path")
	}
	return &DraftTransaction{
		Sender:    sender,
		AssetOut:  assetOut,
		AmountOut: amountOut,
		MaxInput:  maxInput,
		Path:      path,
		Deadline:  deadline.Unix(),
	}, nil
}

// EstimateFee returns the network fee the node would charge for the draft.
func (c *Client) EstimateFee(ctx context.Context, tx *DraftTransaction) (uint64, error) {
	var resp struct {
		Result struct {
			MaxFee string `json:"max_fee"`
		} `json:"result"`
		Error *rpc.RPCError `json:"error"`
	}

	if err := c.rpcClient.Call(ctx, "estimate_transaction_fee", map[string]any{"transaction": tx}, &resp); err != nil {
		return 0, fmt.Errorf("estimate_transaction_fee RPC failed: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("estimate_transaction_fee error: %s", resp.Error.Message)
	}

	fee, err := strconv.ParseUint(resp.Result.MaxFee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid max_fee %q: %w", resp.Result.MaxFee, err)
	}
	return fee, nil
}

// DryRun executes the transaction against current state without committing it.
func (c *Client) DryRun(ctx context.Context, tx *DraftTransaction) (*DryRunResult, error) {
	var resp struct {
		Result *DryRunResult `json:"result"`
		Error  *rpc.RPCError `json:"error"`
	}

	if err := c.rpcClient.Call(ctx, "dry_run", map[string]any{"transaction": tx}, &resp); err != nil {
		return nil, fmt.Errorf("dry_run RPC failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("dry_run error: %s", resp.Error.Message)
	}
	if resp.Result == nil {
		// No definitive status counts as failure at the call site.
		return &DryRunResult{Status: DryRunFailure, Reason: "empty dry_run result"}, nil
	}
	return resp.Result, nil
}

// Submit broadcasts a signed transaction and returns its id.
func (c *Client) Submit(ctx context.Context, tx *DraftTransaction) (string, error) {
	if tx.Signature == "" {
		return "", fmt.Errorf("submit: transaction is not signed")
	}

	var resp struct {
		Result struct {
			ID string `json:"id"`
		} `json:"result"`
		Error *rpc.RPCError `json:"error"`
	}

	if err := c.rpcClient.Call(ctx, "submit_transaction", map[string]any{"transaction": tx}, &resp); err != nil {
		return "", fmt.Errorf("submit_transaction RPC failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("submit_transaction error: code=%d, message=%s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result.ID == "" {
		return "", fmt.Errorf("submit_transaction returned empty transaction id")
	}
	return resp.Result.ID, nil
}

// Balance returns the owner's spendable balance of one asset in smallest units.
func (c *Client) Balance(ctx context.Context, owner, assetID string) (uint64, error) {
	var resp struct {
		Result struct {
			Amount string `json:"amount"`
		} `json:"result"`
		Error *rpc.RPCError `json:"error"`
	}

	params := map[string]any{
		"owner": owner,
		"asset": assetID,
	}

	if err := c.rpcClient.Call(ctx, "get_balance", params, &resp); err != nil {
		return 0, fmt.Errorf("get_balance RPC failed: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("get_balance error: %s", resp.Error.Message)
	}

	amount, err := strconv.ParseUint(resp.Result.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance amount %q: %w", resp.Result.Amount, err)
	}
	return amount, nil
}
