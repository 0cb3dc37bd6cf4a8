package models

import "time"

// TradeEvent records one completed buy for the live feed and the analytics
// store. Amounts are integer smallest units; consumers divide by 10^decimals
// of the respective asset.
type TradeEvent struct {
	TxID        string    `json:"tx_id"`
	Timestamp   time.Time `json:"timestamp"`
	Pair        string    `json:"pair"` // e.g. "ETH-USDT"
	AssetIn     string    `json:"asset_in"`
	AssetOut    string    `json:"asset_out"`
	AmountIn    uint64    `json:"amount_in"`  // base asset smallest units spent
	AmountOut   uint64    `json:"amount_out"` // bought asset smallest units
	Fee         uint64    `json:"fee"`        // network fee, base asset smallest units
	OutDecimals uint8     `json:"out_decimals"`
	WalletID    string    `json:"wallet_id"`
	Pool        string    `json:"pool"`
	Dex         string    `json:"dex"` // always "Mira" for now
}
