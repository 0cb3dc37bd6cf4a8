package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseAmount converts the user-entered amount into a float. This is the only
// place a float is parsed; everything downstream works in integer smallest
// units.
func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount %q is not finite", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v", v)
	}
	return v, nil
}

// toSmallestUnits scales a human amount by the asset's decimals and rounds to
// the nearest integer unit.
func toSmallestUnits(amount float64, decimals uint8) (uint64, error) {
	scaled := amount * math.Pow10(int(decimals))
	if scaled >= math.MaxUint64 {
		return 0, fmt.Errorf("amount %v overflows %d-decimal units", amount, decimals)
	}
	units := uint64(math.Round(scaled))
	if units == 0 {
		return 0, fmt.Errorf("amount %v rounds to zero at %d decimals", amount, decimals)
	}
	return units, nil
}
