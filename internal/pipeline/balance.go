package pipeline

import (
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
)

// Sufficient reports whether the spendable balance covers the full required
// outlay. Equality passes: spending the entire balance is allowed.
func Sufficient(available, required uint64) bool {
	return available >= required
}

// requiredOutlay sums swap input and fee, saturating instead of wrapping.
func requiredOutlay(input, fee uint64) uint64 {
	sum, carry := bits.Add64(input, fee, 0)
	if carry != 0 {
		return maxUint64
	}
	return sum
}

const maxUint64 = ^uint64(0)

// FormatBaseUnits renders an amount of base-asset smallest units as a human
// decimal string, e.g. 1_500_000_000 -> "1.5" for the 9-decimal base asset.
func FormatBaseUnits(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(asset.Base.Decimals)).String()
}
