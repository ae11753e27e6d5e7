package application

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const sessionNamespace = "secure_sessions"

// SessionManager tracks server-side session records alongside the token
// pair each one carries. Sessions survive restarts through the encrypted
// store; invalidated records are kept (with tokens stripped) until the
// cleanup sweep drops them.
type SessionManager struct {
	cfg    SessionConfig
	tokens ports.TokenMinter
	store  ports.EncryptedStore
	audit  *AuditLog
	logger *slog.Logger
	nowFn  func() time.Time

	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewSessionManager(cfg SessionConfig, tokens ports.TokenMinter, store ports.EncryptedStore, audit *AuditLog, logger *slog.Logger) (*SessionManager, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 4 * time.Hour
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = 30 * 24 * time.Hour
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 5
	}
	m := &SessionManager{
		cfg:      cfg,
		tokens:   tokens,
		store:    store,
		audit:    audit,
		logger:   logger,
		nowFn:    time.Now,
		sessions: map[string]domain.Session{},
	}
	if err := store.Load(sessionNamespace, &m.sessions); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load sessions: %w", err)
		}
		m.sessions = map[string]domain.Session{}
	}
	if n := m.CleanupExpired(); n > 0 {
		logger.Info("expired sessions cleared at startup", "count", n)
	}
	return m, nil
}

// Create opens a session for an authenticated user. When the user already
// holds the maximum number of active sessions, the least recently active
// ones are invalidated to make room.
func (m *SessionManager) Create(user domain.User, rememberMe bool, ip, userAgent string) (SessionTokens, error) {
	access, refresh, err := m.tokens.CreatePair(user)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("mint session tokens: %w", err)
	}

	now := m.nowFn()
	ttl := m.cfg.DefaultTTL
	if rememberMe {
		ttl = m.cfg.RememberMeTTL
	}
	session := domain.Session{
		SessionID:    newSessionID(),
		UserEmail:    user.Email,
		UserName:     user.DisplayName,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastActivity: now,
		RememberMe:   rememberMe,
		IPAddress:    ip,
		UserAgent:    userAgent,
		IsActive:     true,
	}

	m.mu.Lock()
	m.evictForUserLocked(user.Email, now)
	m.sessions[session.SessionID] = session
	m.persistLocked()
	m.mu.Unlock()

	m.logger.Info("session opened",
		"session_id", session.SessionID,
		"user_email", user.Email,
		"remember_me", rememberMe,
		"expires_at", session.ExpiresAt)
	return SessionTokens{
		SessionID:    session.SessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// evictForUserLocked invalidates least recently active sessions until the
// user is below the per-user cap, leaving room for one new session.
func (m *SessionManager) evictForUserLocked(email string, now time.Time) {
	var active []domain.Session
	for _, s := range m.sessions {
		if s.UserEmail == email && s.IsActive && now.Before(s.ExpiresAt) {
			active = append(active, s)
		}
	}
	if len(active) < m.cfg.MaxPerUser {
		return
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivity.Before(active[j].LastActivity)
	})
	for i := 0; i <= len(active)-m.cfg.MaxPerUser; i++ {
		m.invalidateLocked(active[i].SessionID, "session limit reached", now)
	}
}

// Validate checks that a session exists, is active, has not expired, and
// that the presented access token verifies and belongs to the session's
// user. On success the session's activity clock is refreshed. A session
// presented with a token that no longer verifies is closed outright: its
// credentials are spent.
func (m *SessionManager) Validate(sessionID, accessToken string) (bool, *domain.TokenClaims) {
	claims := m.tokens.Verify(accessToken, domain.TokenTypeAccess)

	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || !session.IsActive {
		return false, nil
	}
	if claims == nil {
		m.invalidateLocked(sessionID, "token_expired", now)
		m.persistLocked()
		m.audit.SessionExpired(session.UserEmail, sessionID, "access token no longer valid")
		return false, nil
	}
	if !now.Before(session.ExpiresAt) {
		m.invalidateLocked(sessionID, "expired", now)
		m.persistLocked()
		m.audit.SessionExpired(session.UserEmail, sessionID, "expired during validation")
		return false, nil
	}
	if session.UserEmail != claims.Subject {
		return false, nil
	}
	session.LastActivity = now
	m.sessions[sessionID] = session
	m.persistLocked()
	return true, claims
}

// Refresh exchanges a refresh token for a new access token on the session
// that owns it. The refresh token itself stays valid. Remember-me sessions
// also get their expiry pushed out, so a regularly used session never
// dies under the user.
func (m *SessionManager) Refresh(refreshToken, ip string) *SessionTokens {
	access := m.tokens.Refresh(refreshToken)
	if access == "" {
		return nil
	}

	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, session := range m.sessions {
		if session.RefreshToken != refreshToken {
			continue
		}
		if !session.IsActive || !now.Before(session.ExpiresAt) {
			return nil
		}
		session.AccessToken = access
		session.LastActivity = now
		if session.RememberMe {
			session.ExpiresAt = now.Add(m.cfg.RememberMeTTL)
		}
		m.sessions[id] = session
		m.persistLocked()
		m.audit.SessionRefresh(session.UserEmail, ip, id)
		return &SessionTokens{
			SessionID:    id,
			AccessToken:  access,
			RefreshToken: refreshToken,
			ExpiresAt:    session.ExpiresAt,
		}
	}
	return nil
}

// Invalidate closes one session and blacklists its tokens. It returns
// false when the session does not exist or is already closed.
func (m *SessionManager) Invalidate(sessionID, reason string) bool {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || !session.IsActive {
		return false
	}
	m.invalidateLocked(sessionID, reason, now)
	m.persistLocked()
	return true
}

// InvalidateAllForUser closes every active session for a user, optionally
// sparing one session ID. It returns how many sessions were closed.
func (m *SessionManager) InvalidateAllForUser(email, exceptID, reason string) int {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	closed := 0
	for id, session := range m.sessions {
		if session.UserEmail != email || !session.IsActive || id == exceptID {
			continue
		}
		m.invalidateLocked(id, reason, now)
		closed++
	}
	if closed > 0 {
		m.persistLocked()
	}
	return closed
}

// invalidateLocked marks a session inactive, blacklists its tokens and
// strips them from the stored record.
func (m *SessionManager) invalidateLocked(sessionID, reason string, now time.Time) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if session.AccessToken != "" {
		m.tokens.Blacklist(session.AccessToken)
	}
	if session.RefreshToken != "" {
		m.tokens.Blacklist(session.RefreshToken)
	}
	session.IsActive = false
	session.AccessToken = ""
	session.RefreshToken = ""
	session.InvalidatedAt = &now
	session.InvalidationReason = reason
	m.sessions[sessionID] = session
	m.logger.Info("session closed", "session_id", sessionID, "user_email", session.UserEmail, "reason", reason)
}

// UserSessions lists a user's sessions with token material stripped.
func (m *SessionManager) UserSessions(email string, activeOnly bool) []domain.Session {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Session
	for _, session := range m.sessions {
		if session.UserEmail != email {
			continue
		}
		if activeOnly && (!session.IsActive || !now.Before(session.ExpiresAt)) {
			continue
		}
		out = append(out, session.Sanitized())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// CleanupExpired invalidates sessions past their expiry and drops records
// that were invalidated before this sweep. It returns how many records
// changed.
func (m *SessionManager) CleanupExpired() int {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for id, session := range m.sessions {
		switch {
		case session.IsActive && !now.Before(session.ExpiresAt):
			m.invalidateLocked(id, "expired", now)
			m.audit.SessionExpired(session.UserEmail, id, "expired during cleanup")
			changed++
		case !session.IsActive && session.InvalidatedAt != nil && now.Sub(*session.InvalidatedAt) > time.Hour:
			delete(m.sessions, id)
			changed++
		}
	}
	if changed > 0 {
		m.persistLocked()
	}
	return changed
}

// Stats summarizes the session table.
func (m *SessionManager) Stats() SessionStats {
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := SessionStats{Total: len(m.sessions), UsersWithOpen: map[string]int{}}
	for _, session := range m.sessions {
		if session.IsActive && now.Before(session.ExpiresAt) {
			stats.Active++
			stats.UsersWithOpen[session.UserEmail]++
			if session.RememberMe {
				stats.RememberMe++
			}
		}
	}
	return stats
}

func (m *SessionManager) persistLocked() {
	if err := m.store.Save(sessionNamespace, m.sessions); err != nil {
		m.logger.Error("persist sessions failed", "error", err)
	}
}

func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session id entropy unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
