package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

// pbkdf2Iterations follows the OWASP floor for PBKDF2-HMAC-SHA256.
const pbkdf2Iterations = 100_000

// LoadOrCreateKey resolves the storage key from the secret store, generating
// and persisting a fresh 256-bit key on first run.
func LoadOrCreateKey(store ports.SecretStore, name string) ([]byte, error) {
	encoded, err := store.Get(name)
	switch {
	case err == nil:
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil || len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("secret %s holds an invalid storage key", name)
		}
		return key, nil
	case errors.Is(err, domain.ErrNotFound):
		key := make([]byte, chacha20poly1305.KeySize)
		if _, randErr := rand.Read(key); randErr != nil {
			return nil, fmt.Errorf("generate storage key: %w", randErr)
		}
		if setErr := store.Set(name, base64.StdEncoding.EncodeToString(key)); setErr != nil {
			return nil, fmt.Errorf("persist storage key: %w", setErr)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("resolve storage key: %w", err)
	}
}

// KeyFromPassphrase derives a storage key from a passphrase with
// PBKDF2-HMAC-SHA256. Used when the caller supplies a master passphrase
// instead of relying on generated key material.
func KeyFromPassphrase(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if len(salt) < 16 {
		return nil, errors.New("salt must be at least 16 bytes")
	}
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, chacha20poly1305.KeySize, sha256.New), nil
}
