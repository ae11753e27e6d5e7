package storage

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/viralforge/authvault/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store, err := NewFileStore(t.TempDir(), key)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	in := map[string]int{"a": 1}
	if err := store.Save("users", in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var out map[string]int
	if err := store.Load("users", &out); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if out["a"] != 1 || len(out) != 1 {
		t.Fatalf("round trip mismatch: %v", out)
	}
}

func TestLoadMissingNamespace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	var out map[string]int
	if err := store.Load("nope", &out); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTamperedCiphertextIsCorruption(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save("sessions", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	path := filepath.Join(store.dir, "sessions.enc")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ciphertext: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write tampered ciphertext: %v", err)
	}

	var out map[string]string
	err = store.Load("sessions", &out)
	if !errors.Is(err, domain.ErrStorageCorrupted) {
		t.Fatalf("expected ErrStorageCorrupted, got %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("corrupted load must not yield data, got %v", out)
	}
}

func TestCiphertextIsNotPlaintext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save("blacklist", map[string]string{"secret": "hunter2"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(store.dir, "blacklist.enc"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("hunter2")) {
		t.Fatal("plaintext leaked to disk")
	}
}

func TestDeleteRemovesNamespace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save("audit", []int{1, 2, 3}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !store.Exists("audit") {
		t.Fatal("namespace should exist after save")
	}
	if err := store.Delete("audit"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if store.Exists("audit") {
		t.Fatal("namespace should not exist after delete")
	}
	// Deleting again is a no-op.
	if err := store.Delete("audit"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Save("a", "left"); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := store.Save("b", "right"); err != nil {
		t.Fatalf("save b: %v", err)
	}

	// Corrupt one namespace; the sibling must stay readable.
	path := filepath.Join(store.dir, "a.enc")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("corrupt a: %v", err)
	}

	var a, b string
	if err := store.Load("a", &a); !errors.Is(err, domain.ErrStorageCorrupted) {
		t.Fatalf("expected corruption for a, got %v", err)
	}
	if err := store.Load("b", &b); err != nil || b != "right" {
		t.Fatalf("sibling namespace damaged: %q, %v", b, err)
	}
}

func TestKeyFromPassphraseDeterministic(t *testing.T) {
	t.Parallel()

	salt := bytes.Repeat([]byte{0x42}, 16)
	k1, err := KeyFromPassphrase("correct horse", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	k2, err := KeyFromPassphrase("correct horse", salt)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("same passphrase and salt must derive the same key")
	}
	k3, _ := KeyFromPassphrase("other phrase", salt)
	if bytes.Equal(k1, k3) {
		t.Fatal("different passphrases must not collide")
	}
}
