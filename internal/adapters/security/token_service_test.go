package security

import (
	"crypto/rand"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/viralforge/authvault/internal/adapters/storage"
	"github.com/viralforge/authvault/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate storage key: %v", err)
	}
	store, err := storage.NewFileStore(t.TempDir(), key)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	svc, err := NewTokenService(secret, TokenConfig{
		Issuer:     "authvault-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, store, testLogger())
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestCreatePairRoundTrip(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	user := domain.User{Email: "alice@example.com", DisplayName: "Alice"}

	access, refresh, err := svc.CreatePair(user)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	claims := svc.Verify(access, domain.TokenTypeAccess)
	if claims == nil {
		t.Fatal("access token should verify")
	}
	if claims.Subject != user.Email {
		t.Fatalf("subject = %q, want %q", claims.Subject, user.Email)
	}
	if claims.Name != "Alice" {
		t.Fatalf("name = %q, want Alice", claims.Name)
	}
	if claims.TokenID == "" {
		t.Fatal("expected a token id")
	}

	refreshClaims := svc.Verify(refresh, domain.TokenTypeRefresh)
	if refreshClaims == nil {
		t.Fatal("refresh token should verify")
	}
	if refreshClaims.TokenID == claims.TokenID {
		t.Fatal("pair halves must carry distinct token ids")
	}
}

func TestVerifyRejectsTypeConfusion(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	access, refresh, err := svc.CreatePair(domain.User{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if svc.Verify(access, domain.TokenTypeRefresh) != nil {
		t.Fatal("access token must not pass as refresh")
	}
	if svc.Verify(refresh, domain.TokenTypeAccess) != nil {
		t.Fatal("refresh token must not pass as access")
	}
}

func TestVerifyRejectsForeignAndGarbageTokens(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	other := newTestTokenService(t)

	foreign, _, err := other.CreatePair(domain.User{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if svc.Verify(foreign, domain.TokenTypeAccess) != nil {
		t.Fatal("token signed with another secret must not verify")
	}
	if svc.Verify("not-a-token", domain.TokenTypeAccess) != nil {
		t.Fatal("garbage must not verify")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	access, _, err := svc.CreatePair(domain.User{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	svc.nowFn = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if svc.Verify(access, domain.TokenTypeAccess) != nil {
		t.Fatal("expired access token must not verify")
	}
	info := svc.Inspect(access)
	if info == nil || !info.IsExpired {
		t.Fatal("inspect should still decode and flag expiry")
	}
}

func TestBlacklistIdempotence(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	access, _, err := svc.CreatePair(domain.User{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	svc.Blacklist(access)
	svc.Blacklist(access)

	for i := 0; i < 3; i++ {
		if svc.Verify(access, domain.TokenTypeAccess) != nil {
			t.Fatalf("blacklisted token verified on check %d", i)
		}
	}
	svc.mu.Lock()
	entries := len(svc.blacklist)
	svc.mu.Unlock()
	if entries != 1 {
		t.Fatalf("blacklist holds %d entries, want 1", entries)
	}
}

func TestBlacklistSurvivesRestart(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate storage key: %v", err)
	}
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir, key)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	cfg := TokenConfig{Issuer: "authvault-test"}

	first, err := NewTokenService(secret, cfg, store, testLogger())
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	access, _, err := first.CreatePair(domain.User{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	first.Blacklist(access)

	second, err := NewTokenService(secret, cfg, store, testLogger())
	if err != nil {
		t.Fatalf("restarted token service: %v", err)
	}
	if second.Verify(access, domain.TokenTypeAccess) != nil {
		t.Fatal("blacklist must survive a restart")
	}
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	access, refresh, err := svc.CreatePair(domain.User{Email: "a@b.com", DisplayName: "A"})
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	minted := svc.Refresh(refresh)
	if minted == "" {
		t.Fatal("refresh should mint an access token")
	}
	newClaims := svc.Verify(minted, domain.TokenTypeAccess)
	oldClaims := svc.Verify(access, domain.TokenTypeAccess)
	if newClaims == nil || oldClaims == nil {
		t.Fatal("both access tokens should verify")
	}
	if newClaims.TokenID == oldClaims.TokenID {
		t.Fatal("refreshed access token must carry a fresh token id")
	}
	if newClaims.Subject != "a@b.com" {
		t.Fatalf("refreshed subject = %q", newClaims.Subject)
	}

	// The refresh token is deliberately reusable.
	if svc.Refresh(refresh) == "" {
		t.Fatal("refresh token should remain usable")
	}
	// An access token must not drive a refresh.
	if svc.Refresh(access) != "" {
		t.Fatal("access token must not act as refresh token")
	}
}

func TestCompactBlacklistKeepsRecent(t *testing.T) {
	t.Parallel()

	svc := newTestTokenService(t)
	svc.mu.Lock()
	for i := 0; i < blacklistMaxEntries+10; i++ {
		jti := "jti-" + strconv.Itoa(i)
		svc.blacklist = append(svc.blacklist, jti)
		svc.blacklistSet[jti] = struct{}{}
	}
	newest := svc.blacklist[len(svc.blacklist)-1]
	oldest := svc.blacklist[0]
	svc.mu.Unlock()

	svc.CompactBlacklist()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.blacklist) != blacklistKeepEntries {
		t.Fatalf("compacted size = %d, want %d", len(svc.blacklist), blacklistKeepEntries)
	}
	if _, ok := svc.blacklistSet[newest]; !ok {
		t.Fatal("compaction dropped the most recent entry")
	}
	if _, ok := svc.blacklistSet[oldest]; ok {
		t.Fatal("compaction kept the oldest entry")
	}
}
