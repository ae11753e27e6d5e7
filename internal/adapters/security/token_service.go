package security

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const (
	blacklistNamespace = "token_blacklist"

	// Entries for long-expired tokens are dead weight; past the cap the
	// compactor keeps the most recent half.
	blacklistMaxEntries  = 10_000
	blacklistKeepEntries = 5_000
)

// TokenService issues, verifies, refreshes and revokes signed identity
// tokens. Tokens are stateless HS256 JWTs; revocation before natural expiry
// goes through the persisted blacklist because a signature alone cannot
// express "no longer valid".
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      ports.EncryptedStore
	logger     *slog.Logger
	nowFn      func() time.Time

	mu sync.Mutex
	// blacklisted jtis in insertion order (most recent last) plus a set for
	// O(1) membership. Order is what makes compaction keep recent entries.
	blacklist    []string
	blacklistSet map[string]struct{}
}

// TokenConfig carries construction parameters for the token service.
type TokenConfig struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewTokenService builds the service. A missing or short signing secret is
// fatal here, at startup; everything after construction fails soft.
func NewTokenService(secret []byte, cfg TokenConfig, store ports.EncryptedStore, logger *slog.Logger) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, errors.New("token signing secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("token issuer is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 4 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}

	s := &TokenService{
		secret:       secret,
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		store:        store,
		logger:       logger,
		nowFn:        func() time.Time { return time.Now().UTC() },
		blacklistSet: make(map[string]struct{}),
	}
	s.loadBlacklist()
	return s, nil
}

type signedClaims struct {
	Name      string `json:"name,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// CreatePair mints the access/refresh pair for a user. Both halves share the
// secret and algorithm; the type claim and TTL are what differ.
func (s *TokenService) CreatePair(user domain.User) (access, refresh string, err error) {
	access, err = s.sign(user.Email, user.DisplayName, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err = s.sign(user.Email, "", domain.TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

func (s *TokenService) sign(subject, name string, typ domain.TokenType, ttl time.Duration) (string, error) {
	now := s.nowFn()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signedClaims{
		Name:      name,
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.secret)
}

// Verify checks signature, issuer, expiry, type and blacklist membership.
// Any mismatch returns nil; the caller never receives partial trust.
func (s *TokenService) Verify(raw string, expected domain.TokenType) *domain.TokenClaims {
	claims := s.parse(raw, true)
	if claims == nil {
		return nil
	}
	if claims.TokenType != expected {
		s.logger.Warn("token type mismatch", "expected", expected, "got", claims.TokenType)
		return nil
	}
	if s.isBlacklisted(claims.TokenID) {
		s.logger.Warn("attempted use of blacklisted token", "jti", claims.TokenID)
		return nil
	}
	return claims
}

// Refresh verifies a refresh token and mints a brand-new access token bound
// to the same subject. The refresh token itself is reusable until its own
// expiry or explicit logout; rotation is intentionally not performed.
func (s *TokenService) Refresh(refreshToken string) string {
	claims := s.Verify(refreshToken, domain.TokenTypeRefresh)
	if claims == nil {
		return ""
	}
	access, err := s.sign(claims.Subject, claims.Name, domain.TokenTypeAccess, s.accessTTL)
	if err != nil {
		s.logger.Error("sign refreshed access token", "error", err)
		return ""
	}
	return access
}

// Blacklist revokes a token before its natural expiry. The token is decoded
// ignoring expiry so an already-expired token can still be recorded at
// logout. Unparseable tokens are dropped with a warning.
func (s *TokenService) Blacklist(raw string) {
	claims := s.parse(raw, false)
	if claims == nil || claims.TokenID == "" {
		s.logger.Warn("attempted to blacklist invalid token")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklistSet[claims.TokenID]; ok {
		return
	}
	s.blacklist = append(s.blacklist, claims.TokenID)
	s.blacklistSet[claims.TokenID] = struct{}{}
	s.persistBlacklistLocked()
}

// CompactBlacklist bounds blacklist growth by keeping only the most recent
// entries past the cap. Entries for expired tokens are useless dead weight;
// a recency cut is an accepted approximation of a time-aware filter.
func (s *TokenService) CompactBlacklist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blacklist) <= blacklistMaxEntries {
		return
	}
	kept := s.blacklist[len(s.blacklist)-blacklistKeepEntries:]
	s.blacklist = append([]string(nil), kept...)
	s.blacklistSet = make(map[string]struct{}, len(s.blacklist))
	for _, jti := range s.blacklist {
		s.blacklistSet[jti] = struct{}{}
	}
	s.persistBlacklistLocked()
	s.logger.Info("token blacklist compacted", "kept", len(s.blacklist))
}

// TokenInfo describes a token for diagnostics without enforcing expiry.
type TokenInfo struct {
	Subject       string
	TokenType     domain.TokenType
	IssuedAt      time.Time
	ExpiresAt     time.Time
	IsExpired     bool
	IsBlacklisted bool
}

// Inspect decodes a token for display purposes. Returns nil when the
// signature itself does not check out.
func (s *TokenService) Inspect(raw string) *TokenInfo {
	claims := s.parse(raw, false)
	if claims == nil {
		return nil
	}
	return &TokenInfo{
		Subject:       claims.Subject,
		TokenType:     claims.TokenType,
		IssuedAt:      claims.IssuedAt,
		ExpiresAt:     claims.ExpiresAt,
		IsExpired:     s.nowFn().After(claims.ExpiresAt),
		IsBlacklisted: s.isBlacklisted(claims.TokenID),
	}
}

func (s *TokenService) parse(raw string, enforceExpiry bool) *domain.TokenClaims {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.nowFn),
	}
	if !enforceExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(raw, &signedClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if enforceExpiry && errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Info("token has expired")
		} else {
			s.logger.Warn("invalid token", "error", err)
		}
		return nil
	}
	claims, ok := parsed.Claims.(*signedClaims)
	if !ok {
		return nil
	}
	// WithoutClaimsValidation skips issuer checking as well; re-check by hand
	// so an unexpired-but-foreign token cannot slip through Inspect/Blacklist.
	if claims.Issuer != s.issuer {
		s.logger.Warn("token issuer mismatch", "issuer", claims.Issuer)
		return nil
	}

	out := &domain.TokenClaims{
		Subject:   claims.Subject,
		Name:      claims.Name,
		Issuer:    claims.Issuer,
		TokenType: domain.TokenType(claims.TokenType),
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out
}

func (s *TokenService) isBlacklisted(jti string) bool {
	if jti == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blacklistSet[jti]
	return ok
}

func (s *TokenService) loadBlacklist() {
	var entries []string
	err := s.store.Load(blacklistNamespace, &entries)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		// Start empty rather than refuse service; revocations re-accumulate.
		s.logger.Error("load token blacklist", "error", err)
		return
	}
	s.blacklist = entries
	for _, jti := range entries {
		s.blacklistSet[jti] = struct{}{}
	}
}

func (s *TokenService) persistBlacklistLocked() {
	if err := s.store.Save(blacklistNamespace, s.blacklist); err != nil {
		s.logger.Error("save token blacklist", "error", err)
	}
}
