package wallet

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no wallet record exists for a chat. By the time
// an order reaches the pipeline a wallet is guaranteed to exist, so hitting
// this from the buy flow is a defect, not a user error.
var ErrNotFound = errors.New("wallet not found")

// Record is a persisted wallet. The signing key is stored encrypted; the core
// never persists a decrypted secret.
type Record struct {
	ID              string    `json:"id"`
	ChatID          int64     `json:"chat_id"`
	Address         string    `json:"address"`
	EncryptedSecret string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the wallet persistence boundary consumed by the core.
type Store interface {
	// GetByChat returns the wallet for a chat, ErrNotFound if none exists.
	GetByChat(ctx context.Context, chatID int64) (*Record, error)

	// GetOrCreate returns the chat's wallet, generating and persisting a new
	// encrypted one on first contact.
	GetOrCreate(ctx context.Context, chatID int64) (*Record, error)
}
