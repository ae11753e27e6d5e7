package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/viralforge/authvault/internal/domain"
)

const secureDeletePasses = 3

// FileStore implements ports.EncryptedStore on local files: one
// `<namespace>.enc` per logical table, each value JSON-serialized and sealed
// with XChaCha20-Poly1305 before it touches disk. The AEAD tag is what turns
// tampering into a hard domain.ErrStorageCorrupted instead of garbage data.
type FileStore struct {
	dir  string
	aead cipher.AEAD

	mu sync.Mutex
}

// NewFileStore creates the store rooted at dir with a 32-byte key.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("storage key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", domain.ErrStorageUnavailable, err)
	}
	return &FileStore{dir: dir, aead: aead}, nil
}

func (s *FileStore) path(namespace string) (string, error) {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) {
		return "", fmt.Errorf("%w: bad namespace %q", domain.ErrInvalidInput, namespace)
	}
	return filepath.Join(s.dir, namespace+".enc"), nil
}

// Save serializes, encrypts and atomically writes v under the namespace.
// The temp-file-plus-rename dance keeps a crash from half-writing a table.
func (s *FileStore) Save(namespace string, v any) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", namespace, err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(namespace))

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp file for %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	return nil
}

// Load decrypts the namespace into v. A missing file is domain.ErrNotFound;
// an authentication failure is domain.ErrStorageCorrupted.
func (s *FileStore) Load(namespace string, v any) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sealed, err := os.ReadFile(path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: namespace %s", domain.ErrNotFound, namespace)
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}

	if len(sealed) < s.aead.NonceSize() {
		return fmt.Errorf("%w: namespace %s truncated", domain.ErrStorageCorrupted, namespace)
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(namespace))
	if err != nil {
		return fmt.Errorf("%w: namespace %s failed authentication", domain.ErrStorageCorrupted, namespace)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: namespace %s holds unexpected shape: %v", domain.ErrStorageCorrupted, namespace, err)
	}
	return nil
}

// Delete overwrites the backing bytes with random data before unlinking.
func (s *FileStore) Delete(namespace string) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	size := info.Size()
	junk := make([]byte, size)
	for pass := 0; pass < secureDeletePasses; pass++ {
		if _, err := rand.Read(junk); err != nil {
			_ = f.Close()
			return fmt.Errorf("overwrite %s: %w", namespace, err)
		}
		if _, err := f.WriteAt(junk, 0); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: overwrite %s: %v", domain.ErrStorageUnavailable, namespace, err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: sync %s: %v", domain.ErrStorageUnavailable, namespace, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrStorageUnavailable, namespace, err)
	}
	return nil
}

// Exists reports whether the namespace has backing bytes on disk.
func (s *FileStore) Exists(namespace string) bool {
	path, err := s.path(namespace)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = os.Stat(path)
	return err == nil
}
