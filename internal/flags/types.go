package flags

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("toggle not found")

// Well-known toggle keys checked by the trading surfaces.
const (
	// KeyTradingEnabled gates the purchase endpoints. Absent means enabled;
	// flipping it to false is the ops kill switch for new orders.
	KeyTradingEnabled = "trading.enabled"
)

// Toggle is one named operational switch. Toggles only gate new work; they
// never interrupt an order already in flight.
type Toggle struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	Note      string    `json:"note,omitempty"` // free-form operator note, e.g. why trading is off
	UpdatedAt time.Time `json:"updated_at"`
}
