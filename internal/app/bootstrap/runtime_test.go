package bootstrap

import (
	"bytes"
	"testing"

	"github.com/viralforge/authvault/internal/domain"
)

type memorySecrets struct {
	values map[string]string
}

func newMemorySecrets() *memorySecrets {
	return &memorySecrets{values: map[string]string{}}
}

func (m *memorySecrets) Get(name string) (string, error) {
	if value, ok := m.values[name]; ok {
		return value, nil
	}
	return "", domain.ErrNotFound
}

func (m *memorySecrets) Set(name, value string) error {
	m.values[name] = value
	return nil
}

func (m *memorySecrets) Delete(name string) error {
	if _, ok := m.values[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.values, name)
	return nil
}

func (m *memorySecrets) Persistent() bool { return true }

func TestResolveStorageKeyFromPassphrase(t *testing.T) {
	t.Parallel()
	secrets := newMemorySecrets()
	cfg := Config{MasterPassphrase: "correct horse battery staple"}

	key, err := resolveStorageKey(cfg, secrets)
	if err != nil {
		t.Fatalf("resolveStorageKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("derived key is %d bytes, want 32", len(key))
	}
	if _, ok := secrets.values["storage_salt"]; !ok {
		t.Fatal("salt not persisted")
	}
	if _, ok := secrets.values["storage_key"]; ok {
		t.Fatal("random key stored despite passphrase")
	}

	again, err := resolveStorageKey(cfg, secrets)
	if err != nil {
		t.Fatalf("resolveStorageKey second run: %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Error("same passphrase and salt derived different keys")
	}

	other, err := resolveStorageKey(Config{MasterPassphrase: "different"}, secrets)
	if err != nil {
		t.Fatalf("resolveStorageKey other passphrase: %v", err)
	}
	if bytes.Equal(key, other) {
		t.Error("different passphrases derived the same key")
	}
}

func TestResolveStorageKeyGeneratesWithoutPassphrase(t *testing.T) {
	t.Parallel()
	secrets := newMemorySecrets()

	key, err := resolveStorageKey(Config{}, secrets)
	if err != nil {
		t.Fatalf("resolveStorageKey: %v", err)
	}
	again, err := resolveStorageKey(Config{}, secrets)
	if err != nil {
		t.Fatalf("resolveStorageKey second run: %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Error("generated key did not round-trip through the secret store")
	}
}
