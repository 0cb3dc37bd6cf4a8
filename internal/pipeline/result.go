package pipeline

import (
	"github.com/aman-zulfiqar/fuel-trade-bot/internal/ledger"
)

// AbortReason classifies why an order stopped before submission.
type AbortReason string

const (
	// ReasonInvalidAmount - unparsable or non-positive user input.
	ReasonInvalidAmount AbortReason = "invalid_amount"
	// ReasonWalletNotFound - no wallet record for the order's chat. A wallet
	// is guaranteed to exist by the time an order can be created, so this is
	// logged as a defect rather than surfaced as a user mistake.
	ReasonWalletNotFound AbortReason = "wallet_not_found"
	// ReasonInsufficientBalance - spendable balance below required input + fee.
	ReasonInsufficientBalance AbortReason = "insufficient_balance"
	// ReasonSimulationFailed - the dry run did not report definitive success.
	ReasonSimulationFailed AbortReason = "simulation_failed"
	// ReasonDeadlineExceeded - the order's pricing deadline elapsed before the
	// swap could be built; the caller should re-quote and retry.
	ReasonDeadlineExceeded AbortReason = "deadline_exceeded"
	// ReasonProvider - a collaborator call failed; transient, safe to retry.
	ReasonProvider AbortReason = "provider_error"
)

// Result is the tagged outcome of one pipeline run. It is reported to the
// caller and never persisted.
type Result struct {
	Success bool        `json:"success"`
	Reason  AbortReason `json:"reason,omitempty"`
	Detail  string      `json:"detail,omitempty"`

	// Set on success.
	TxID         string           `json:"tx_id,omitempty"`
	AmountSpent  uint64           `json:"amount_spent,omitempty"`  // base smallest units, excluding fee
	Fee          uint64           `json:"fee,omitempty"`           // base smallest units
	AmountBought uint64           `json:"amount_bought,omitempty"` // asset smallest units
	Position     *ledger.Position `json:"position,omitempty"`

	// Set when Reason is ReasonInsufficientBalance.
	Available uint64 `json:"available,omitempty"`
	Required  uint64 `json:"required,omitempty"`
}

func aborted(reason AbortReason, detail string) *Result {
	return &Result{Reason: reason, Detail: detail}
}
