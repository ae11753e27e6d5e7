package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/viralforge/authvault/internal/domain"
)

// KeyringStore keeps secrets in the OS credential service (Keychain,
// libsecret, Windows Credential Manager) via go-keyring.
type KeyringStore struct {
	service string
}

// NewKeyringStore probes the OS keyring with a set/get/delete round trip and
// fails if the backend is unusable, so the caller can fall back explicitly
// instead of discovering a broken backend mid-flight.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, errors.New("keyring service name is required")
	}
	s := &KeyringStore{service: service}

	const probeName = "availability-probe"
	if err := keyring.Set(service, probeName, "ok"); err != nil {
		return nil, fmt.Errorf("keyring unavailable: %w", err)
	}
	got, err := keyring.Get(service, probeName)
	_ = keyring.Delete(service, probeName)
	if err != nil || got != "ok" {
		return nil, fmt.Errorf("keyring round trip failed: %w", err)
	}
	return s, nil
}

func (s *KeyringStore) Get(name string) (string, error) {
	value, err := keyring.Get(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", name, err)
	}
	return value, nil
}

func (s *KeyringStore) Set(name, value string) error {
	if err := keyring.Set(s.service, name, value); err != nil {
		return fmt.Errorf("keyring set %s: %w", name, err)
	}
	return nil
}

func (s *KeyringStore) Delete(name string) error {
	err := keyring.Delete(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring delete %s: %w", name, err)
	}
	return nil
}

func (s *KeyringStore) Persistent() bool { return true }
