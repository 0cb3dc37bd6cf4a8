package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Compile-time check: *SQLStore must satisfy Store.
var _ Store = (*SQLStore)(nil)

// SQLStore is the SQLite-backed wallet store.
type SQLStore struct {
	db     *sql.DB
	signer *Signer
	logger *logrus.Logger
}

// StoreConfig holds configuration for the wallet store.
type StoreConfig struct {
	Path   string
	Signer *Signer
	Logger *logrus.Logger
}

const walletSchema = `
CREATE TABLE IF NOT EXISTS wallets (
	id TEXT PRIMARY KEY,
	chat_id INTEGER NOT NULL UNIQUE,
	address TEXT NOT NULL,
	encrypted_secret TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_wallets_chat_id ON wallets(chat_id);
`

// NewSQLStore opens (and migrates) the wallet database.
func NewSQLStore(ctx context.Context, cfg StoreConfig) (*SQLStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("wallet store: path is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("wallet store: signer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("wallet store: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet store: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, walletSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("wallet store: init schema: %w", err)
	}

	return &SQLStore{db: db, signer: cfg.Signer, logger: cfg.Logger}, nil
}

// NewSQLStoreFromDB wraps an existing database handle; the caller owns closing
// it. Used when wallet records and positions share one database file.
func NewSQLStoreFromDB(ctx context.Context, db *sql.DB, signer *Signer, logger *logrus.Logger) (*SQLStore, error) {
	if signer == nil {
		return nil, fmt.Errorf("wallet store: signer is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if _, err := db.ExecContext(ctx, walletSchema); err != nil {
		return nil, fmt.Errorf("wallet store: init schema: %w", err)
	}
	return &SQLStore{db: db, signer: signer, logger: logger}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// GetByChat returns the wallet for a chat, ErrNotFound if none exists.
func (s *SQLStore) GetByChat(ctx context.Context, chatID int64) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, address, encrypted_secret, created_at FROM wallets WHERE chat_id = ?`,
		chatID,
	).Scan(&rec.ID, &rec.ChatID, &rec.Address, &rec.EncryptedSecret, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet by chat %d: %w", chatID, err)
	}
	return &rec, nil
}

// GetOrCreate returns the chat's wallet, generating a fresh encrypted keypair
// on first contact.
func (s *SQLStore) GetOrCreate(ctx context.Context, chatID int64) (*Record, error) {
	if rec, err := s.GetByChat(ctx, chatID); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	secret, address, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("create wallet for chat %d: %w", chatID, err)
	}
	encrypted, err := s.signer.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("create wallet for chat %d: %w", chatID, err)
	}

	rec := &Record{
		ID:              uuid.NewString(),
		ChatID:          chatID,
		Address:         address,
		EncryptedSecret: encrypted,
		CreatedAt:       time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wallets (id, chat_id, address, encrypted_secret, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.Address, rec.EncryptedSecret, rec.CreatedAt,
	)
	if err != nil {
		// Lost a create race with a concurrent first contact for the same chat.
		if existing, gerr := s.GetByChat(ctx, chatID); gerr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert wallet for chat %d: %w", chatID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"address": address,
	}).Info("created wallet")

	return rec, nil
}
