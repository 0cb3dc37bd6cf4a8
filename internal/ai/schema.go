package ai

// tradesSchemaDescription describes the ClickHouse schema used for NL→SQL
// prompting. Keep it in sync with the trades table definition in
// internal/cache/clickhouse.go.
const tradesSchemaDescription = `
Table: trades

Columns:
  - tx_id        String    -- Transaction id of the submitted swap (unique)
  - timestamp    DateTime  -- Submission time (UTC)
  - pair         String    -- Trading pair, e.g. "ETH-USDT"
  - asset_in     String    -- Asset id spent (the base asset)
  - asset_out    String    -- Asset id bought
  - amount_in    UInt64    -- Base asset spent, in smallest units (divide by 1e9 for ETH)
  - amount_out   UInt64    -- Asset bought, in smallest units (divide by 10^out_decimals)
  - fee          UInt64    -- Network fee in base asset smallest units
  - out_decimals UInt8     -- Decimals of the bought asset
  - wallet_id    String    -- Buying wallet
  - pool         String    -- Pool the swap routed through
  - dex          String    -- DEX name (currently "Mira")

Notes:
  - Amounts are integers in smallest units; convert with amount_out / pow(10, out_decimals)
    and amount_in / 1e9 when a human-readable figure is needed.
  - For spend volume SUM(amount_in); for buy volume group by asset_out before summing,
    since different assets use different decimals.
  - Time filters should use timestamp, e.g. timestamp >= now() - INTERVAL 24 HOUR.
`
