package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/fuel-trade-bot/internal/asset"
)

// Sentinel errors for ledger operations.
var (
	ErrNotFound               = errors.New("position not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Position is a wallet's accumulated holding of one asset, in smallest units.
// At most one Position exists per (wallet_id, asset_id) pair.
type Position struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	AssetID     string    `json:"asset_id"`
	AssetSymbol string    `json:"asset_symbol"`
	Decimals    uint8     `json:"decimals"`
	Amount      *big.Int  `json:"amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HumanAmount renders the position in human-scale units (amount / 10^decimals).
func (p *Position) HumanAmount() string {
	return decimal.NewFromBigInt(p.Amount, -int32(p.Decimals)).String()
}

// Store maintains positions in SQLite. Accumulations for the same
// (wallet, asset) key are serialized: a per-key mutex covers in-process
// callers, and a versioned UPDATE retried on conflict covers everything else,
// so concurrent buys can never lose an update.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreConfig holds configuration for the position ledger.
type StoreConfig struct {
	Path   string
	Logger *logrus.Logger
}

const positionSchema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	wallet_id TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	asset_symbol TEXT NOT NULL,
	decimals INTEGER NOT NULL,
	amount TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(wallet_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_positions_wallet_id ON positions(wallet_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_wallet_asset ON positions(wallet_id, asset_id);
`

// NewStore opens (and migrates) the position database.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger: path is required")
	}
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping database: %w", err)
	}
	s, err := NewStoreFromDB(ctx, db, cfg.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB wraps an existing database handle; the caller owns closing it.
func NewStoreFromDB(ctx context.Context, db *sql.DB, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if _, err := db.ExecContext(ctx, positionSchema); err != nil {
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	return &Store{db: db, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) lockFor(walletID, assetID string) *sync.Mutex {
	key := walletID + "|" + assetID
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Accumulate credits delta smallest units to the wallet's position in the
// asset, creating the position on the first buy. The resulting position is
// returned. Delta must be strictly positive; the buy flow never decrements.
func (s *Store) Accumulate(ctx context.Context, walletID string, a asset.Descriptor, delta *big.Int) (*Position, error) {
	if delta == nil || delta.Sign() <= 0 {
		return nil, fmt.Errorf("ledger: delta must be positive, got %v", delta)
	}

	l := s.lockFor(walletID, a.AssetID)
	l.Lock()
	defer l.Unlock()

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		pos, err := s.tryAccumulate(ctx, walletID, a, delta)
		if err == nil {
			return pos, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		s.logger.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"asset_id":  a.AssetID,
			"attempt":   attempt + 1,
		}).Warn("position version conflict, retrying")
	}
	return nil, lastErr
}

func (s *Store) tryAccumulate(ctx context.Context, walletID string, a asset.Descriptor, delta *big.Int) (*Position, error) {
	var (
		id        string
		amountStr string
		version   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, amount, version FROM positions WHERE wallet_id = ? AND asset_id = ?`,
		walletID, a.AssetID,
	).Scan(&id, &amountStr, &version)

	now := time.Now().UTC()

	if errors.Is(err, sql.ErrNoRows) {
		pos := &Position{
			ID:          uuid.NewString(),
			WalletID:    walletID,
			AssetID:     a.AssetID,
			AssetSymbol: a.Symbol,
			Decimals:    a.Decimals,
			Amount:      new(big.Int).Set(delta),
			UpdatedAt:   now,
		}
		_, ierr := s.db.ExecContext(ctx,
			`INSERT INTO positions (id, wallet_id, asset_id, asset_symbol, decimals, amount, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
			pos.ID, pos.WalletID, pos.AssetID, pos.AssetSymbol, pos.Decimals, pos.Amount.String(), now,
		)
		if ierr != nil {
			// A concurrent first buy won the insert; re-read and add instead.
			return nil, ErrConcurrentModification
		}
		return pos, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: read position: %w", err)
	}

	current, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return nil, fmt.Errorf("ledger: corrupt amount %q for position %s", amountStr, id)
	}
	next := new(big.Int).Add(current, delta)

	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET amount = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		next.String(), now, id, version,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: update position: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ledger: update position: %w", err)
	}
	if affected == 0 {
		return nil, ErrConcurrentModification
	}

	return &Position{
		ID:          id,
		WalletID:    walletID,
		AssetID:     a.AssetID,
		AssetSymbol: a.Symbol,
		Decimals:    a.Decimals,
		Amount:      next,
		UpdatedAt:   now,
	}, nil
}

// Get returns the wallet's position in one asset, ErrNotFound if none exists.
func (s *Store) Get(ctx context.Context, walletID, assetID string) (*Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_id, asset_id, asset_symbol, decimals, amount, updated_at
		 FROM positions WHERE wallet_id = ? AND asset_id = ?`,
		walletID, assetID,
	)
	pos, err := scanPosition(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return pos, err
}

// ListByWallet returns all positions held by a wallet, ordered by symbol.
func (s *Store) ListByWallet(ctx context.Context, walletID string) ([]*Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_id, asset_id, asset_symbol, decimals, amount, updated_at
		 FROM positions WHERE wallet_id = ? ORDER BY asset_symbol`,
		walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: list positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		pos, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate positions: %w", err)
	}
	return out, nil
}

func scanPosition(scan func(dest ...any) error) (*Position, error) {
	var (
		pos       Position
		amountStr string
	)
	if err := scan(&pos.ID, &pos.WalletID, &pos.AssetID, &pos.AssetSymbol, &pos.Decimals, &amountStr, &pos.UpdatedAt); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return nil, fmt.Errorf("ledger: corrupt amount %q for position %s", amountStr, pos.ID)
	}
	pos.Amount = amount
	return &pos, nil
}
