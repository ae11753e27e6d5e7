package application

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/viralforge/authvault/internal/adapters/security"
	"github.com/viralforge/authvault/internal/adapters/storage"
	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

var testKey = bytes.Repeat([]byte{0x2a}, 32)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) ports.EncryptedStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), testKey)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

// plainHasher trades hashing cost for test speed. Production wiring uses
// bcrypt behind the same interface.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

func newTestTokens(t *testing.T, store ports.EncryptedStore) *security.TokenService {
	t.Helper()
	secret := bytes.Repeat([]byte{0x5c}, 32)
	svc, err := security.NewTokenService(secret, security.TokenConfig{
		Issuer:     "authvault-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, store, testLogger())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func newTestAudit(t *testing.T, store ports.EncryptedStore) *AuditLog {
	t.Helper()
	audit, err := NewAuditLog(AuditConfig{MaxEvents: 500, Retention: 90 * 24 * time.Hour}, store, testLogger())
	if err != nil {
		t.Fatalf("NewAuditLog: %v", err)
	}
	return audit
}

func newTestPolicy(t *testing.T, store ports.EncryptedStore) *PolicyEngine {
	t.Helper()
	engine, err := NewPolicyEngine(PolicyConfig{
		MinLength:      8,
		MaxLength:      128,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		HistoryDepth:   3,
	}, plainHasher{}, store, testLogger())
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	return engine
}

func testUser(email string) domain.User {
	return domain.User{
		Email:       email,
		DisplayName: "Test User",
		CreatedAt:   time.Now(),
	}
}
