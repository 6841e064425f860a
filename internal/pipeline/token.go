package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"gallery-server/internal/database"
)

// tokenSecretSetting is the settings key holding the install-local token
// signing secret.
const tokenSecretSetting = "token_secret"

// tokenBytes is the raw token length; hex-encoded tokens are twice this.
const tokenBytes = 24

// TokenSigner derives public tokens from asset identity. Tokens are keyed
// hashes, not stored randomness: the same asset at the same content
// generation always signs to the same token, and bumping the generation
// structurally invalidates every previously handed-out URL.
type TokenSigner struct {
	key []byte
}

// NewTokenSigner loads (or creates on first boot) the signing secret.
func NewTokenSigner(ctx context.Context, db *database.Database) (*TokenSigner, error) {
	secretHex, err := db.EnsureSetting(ctx, tokenSecretSetting, func() (string, error) {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		return hex.EncodeToString(buf), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load token secret: %w", err)
	}

	key, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("stored token secret is corrupt: %w", err)
	}
	return &TokenSigner{key: key}, nil
}

// AssetToken signs an asset's identity at a content generation.
func (s *TokenSigner) AssetToken(albumID int64, storedPath string, generation int64) string {
	return s.sign(fmt.Sprintf("asset:%d:%s:%d", albumID, storedPath, generation))
}

// RecordingToken signs a recording's identity.
func (s *TokenSigner) RecordingToken(albumID int64, storedPath string) string {
	return s.sign(fmt.Sprintf("recording:%d:%s", albumID, storedPath))
}

func (s *TokenSigner) sign(message string) string {
	h, err := blake2b.New(tokenBytes, s.key)
	if err != nil {
		// Only possible with an oversized key, which NewTokenSigner
		// never produces.
		panic(fmt.Sprintf("blake2b init: %v", err))
	}
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
