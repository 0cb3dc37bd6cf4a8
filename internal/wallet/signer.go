package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer holds the symmetric key used to protect wallet secrets at rest and
// turns encrypted records into in-memory signing capabilities.
type Signer struct {
	key []byte // 32 bytes, AES-256-GCM
}

// NewSigner creates a Signer from a hex-encoded 32-byte encryption key.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("signer: expected 32-byte key, got %d", len(key))
	}
	return &Signer{key: key}, nil
}

// GenerateKey creates a fresh ed25519 keypair and returns the private seed
// together with the derived on-chain address.
func GenerateKey() (secret []byte, address string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	return priv.Seed(), DeriveAddress(pub), nil
}

// DeriveAddress maps a public key to the chain's 0x-prefixed b256 address.
func DeriveAddress(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[:])
}

// Encrypt seals a wallet secret with AES-256-GCM. Output is hex(nonce||box).
func (s *Signer) Encrypt(secret []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("encrypt secret: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("encrypt secret: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encrypt secret: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, secret, nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens an encrypted wallet secret and returns a signing handle.
func (s *Signer) Decrypt(encrypted string) (*SigningHandle, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: invalid hex: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("decrypt secret: ciphertext too short")
	}

	seed, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("decrypt secret: expected %d-byte seed, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningHandle{
		priv:    priv,
		address: DeriveAddress(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// SigningHandle is a decrypted, in-memory signing capability. It is read-only
// for the duration of one order and is never persisted.
type SigningHandle struct {
	priv    ed25519.PrivateKey
	address string
}

// Address returns the wallet's on-chain address.
func (h *SigningHandle) Address() string { return h.address }

// Sign signs the canonical payload and returns a hex-encoded signature.
func (h *SigningHandle) Sign(payload []byte) string {
	return hex.EncodeToString(ed25519.Sign(h.priv, payload))
}
