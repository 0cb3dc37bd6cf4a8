package mira

import (
	"fmt"
	"strings"
)

// PoolID addresses one AMM pool by its asset pair. Mirrors the on-chain pool
// key: ordered pair plus the stable/volatile flag.
type PoolID struct {
	AssetA string `json:"asset_a"`
	AssetB string `json:"asset_b"`
	Stable bool   `json:"stable"`
}

func (p PoolID) String() string {
	kind := "volatile"
	if p.Stable {
		kind = "stable"
	}
	return fmt.Sprintf("%s/%s (%s)", short(p.AssetA), short(p.AssetB), kind)
}

func short(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// DirectPath returns the single-pool path from the base asset into assetOut.
// Multi-leg routing is out of scope; every supported asset has a direct
// base-asset pool.
func DirectPath(baseAssetID, assetOut string) []PoolID {
	return []PoolID{{
		AssetA: strings.ToLower(baseAssetID),
		AssetB: strings.ToLower(assetOut),
		Stable: false,
	}}
}

// DraftTransaction is an unsubmitted exact-output swap. It is built locally,
// priced by the node's fee estimator, and only then signed and submitted.
type DraftTransaction struct {
	Sender    string   `json:"sender"`
	AssetOut  string   `json:"asset_out"`
	AmountOut uint64   `json:"amount_out,string"`
	MaxInput  uint64   `json:"max_input,string"`
	Path      []PoolID `json:"path"`
	Deadline  int64    `json:"deadline"` // unix seconds; node rejects past-deadline swaps
	MaxFee    uint64   `json:"max_fee,string"`
	Signature string   `json:"signature,omitempty"` // hex over the canonical encoding
}

// Dry-run status values reported by the node.
const (
	DryRunSuccess = "success"
	DryRunFailure = "failure"
)

// DryRunResult is the node's verdict on a simulated transaction.
type DryRunResult struct {
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Receipts []string `json:"receipts,omitempty"`
}

// Succeeded reports whether the dry run carried a definitive success status.
// Anything else, including an empty status, counts as failure.
func (r *DryRunResult) Succeeded() bool {
	return r != nil && r.Status == DryRunSuccess
}
