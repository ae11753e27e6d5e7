package application

import (
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const usersNamespace = "users"

// genericLoginError is returned for every credential failure so callers
// cannot distinguish unknown accounts from wrong passwords.
const genericLoginError = "Invalid email or password"

// Dependencies carries everything the account service needs. All fields
// are required except OAuthLimiter, which defaults to no limiting.
type Dependencies struct {
	Policy       *PolicyEngine
	Limiter      *RateLimiter
	OAuthLimiter *RateLimiter
	Tokens       ports.TokenMinter
	Sessions     *SessionManager
	Audit        *AuditLog
	Store        ports.EncryptedStore
	Hasher       ports.PasswordHasher
	Logger       *slog.Logger
}

// Service is the façade over the whole subsystem: account lifecycle,
// login and logout, password changes and security introspection. It holds
// the single authenticated identity for this process, mirroring a desktop
// application with one signed-in user at a time.
type Service struct {
	policy       *PolicyEngine
	limiter      *RateLimiter
	oauthLimiter *RateLimiter
	tokens       ports.TokenMinter
	sessions     *SessionManager
	audit        *AuditLog
	store        ports.EncryptedStore
	hasher       ports.PasswordHasher
	logger       *slog.Logger
	nowFn        func() time.Time

	mu      sync.Mutex
	users   map[string]domain.User
	current *domain.Session
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Policy == nil || deps.Limiter == nil || deps.Tokens == nil ||
		deps.Sessions == nil || deps.Audit == nil || deps.Store == nil || deps.Hasher == nil {
		return nil, fmt.Errorf("%w: missing service dependency", domain.ErrInvalidInput)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Service{
		policy:       deps.Policy,
		limiter:      deps.Limiter,
		oauthLimiter: deps.OAuthLimiter,
		tokens:       deps.Tokens,
		sessions:     deps.Sessions,
		audit:        deps.Audit,
		store:        deps.Store,
		hasher:       deps.Hasher,
		logger:       deps.Logger,
		nowFn:        time.Now,
		users:        map[string]domain.User{},
	}
	if err := deps.Store.Load(usersNamespace, &s.users); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load users: %w", err)
		}
		s.users = map[string]domain.User{}
	}
	return s, nil
}

// Signup registers a new account. It returns a human-readable message on
// both paths; the boolean reports success.
func (s *Service) Signup(email, password, displayName, ip, userAgent string) (bool, string) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		s.audit.Log(domain.EventSignup, domain.SeverityLow, false, email, ip, userAgent, map[string]any{"reason": "invalid_email"})
		return false, "Please enter a valid email address"
	}
	if strings.TrimSpace(displayName) == "" {
		s.audit.Log(domain.EventSignup, domain.SeverityLow, false, normalized, ip, userAgent, map[string]any{"reason": "missing_display_name"})
		return false, "Please enter a display name"
	}

	if ok, issues := s.policy.ValidateNewPassword(normalized, password, ""); !ok {
		s.audit.Log(domain.EventSignup, domain.SeverityLow, false, normalized, ip, userAgent, map[string]any{"reason": "policy_rejected"})
		return false, strings.Join(issues, "; ")
	}

	s.mu.Lock()
	_, exists := s.users[normalized]
	s.mu.Unlock()
	if exists {
		s.audit.Suspicious(normalized, ip, "duplicate_signup", nil)
		return false, "An account with this email already exists"
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.audit.SystemError(normalized, "signup", err)
		return false, "Could not create the account, try again"
	}

	now := s.nowFn()
	user := domain.User{
		Email:             normalized,
		PasswordHash:      hash,
		DisplayName:       strings.TrimSpace(displayName),
		CreatedAt:         now,
		PasswordChangedAt: now,
	}

	s.mu.Lock()
	if _, exists := s.users[normalized]; exists {
		s.mu.Unlock()
		s.audit.Suspicious(normalized, ip, "duplicate_signup", nil)
		return false, "An account with this email already exists"
	}
	s.users[normalized] = user
	err = s.persistUsersLocked()
	s.mu.Unlock()
	if err != nil {
		s.audit.SystemError(normalized, "signup", err)
		return false, "Could not create the account, try again"
	}

	if err := s.policy.RecordHistory(normalized, hash); err != nil {
		s.logger.Error("record password history failed", "email", normalized, "error", err)
	}
	s.audit.Log(domain.EventSignup, domain.SeverityLow, true, normalized, ip, userAgent, nil)
	s.logger.Info("account created", "email", normalized)
	return true, "Account created, you can sign in now"
}

// Login authenticates an account and opens a session. Lockout and window
// checks run before any credential work; failures feed the limiter which
// may engage a lockout.
func (s *Service) Login(email, password string, rememberMe bool, ip, userAgent string) (bool, string, *SessionTokens) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		s.audit.LoginFailure(email, ip, userAgent, "invalid_email")
		return false, genericLoginError, nil
	}

	if decision := s.limiter.CheckAllowed(normalized); !decision.Allowed {
		s.audit.RateLimitExceeded(normalized, ip, "login")
		msg := decision.Reason
		if decision.RetryAfter > 0 {
			msg = fmt.Sprintf("%s, try again in %s", decision.Reason, roundDuration(decision.RetryAfter))
		}
		return false, msg, nil
	}

	s.mu.Lock()
	user, exists := s.users[normalized]
	s.mu.Unlock()

	if !exists {
		s.limiter.RecordAttempt(normalized, false)
		s.audit.LoginFailure(normalized, ip, userAgent, "user_not_found")
		s.noteLockoutIfEngaged(normalized, ip)
		return false, genericLoginError, nil
	}

	// The hash comparison runs outside any shared lock.
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.limiter.RecordAttempt(normalized, false)
		s.audit.LoginFailure(normalized, ip, userAgent, "invalid_password")
		s.noteLockoutIfEngaged(normalized, ip)
		return false, genericLoginError, nil
	}

	s.limiter.RecordAttempt(normalized, true)

	now := s.nowFn()
	s.mu.Lock()
	user = s.users[normalized]
	user.LoginCount++
	user.LastLogin = &now
	s.users[normalized] = user
	if err := s.persistUsersLocked(); err != nil {
		s.logger.Error("persist users failed", "error", err)
	}
	s.mu.Unlock()

	tokens, err := s.sessions.Create(user, rememberMe, ip, userAgent)
	if err != nil {
		s.audit.SystemError(normalized, "login", err)
		return false, "Could not open a session, try again", nil
	}

	s.setCurrent(normalized, tokens.SessionID)
	s.audit.LoginSuccess(normalized, ip, userAgent, "password")
	return true, fmt.Sprintf("Welcome back, %s", user.DisplayName), &tokens
}

// ExternalLogin records a sign-in completed by an external identity
// provider. The address-based limiter throttles abuse of the callback.
func (s *Service) ExternalLogin(email, displayName, provider, ip, userAgent string) (bool, string, *SessionTokens) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return false, "Identity provider returned an invalid email", nil
	}

	if s.oauthLimiter != nil && ip != "" {
		if decision := s.oauthLimiter.CheckAllowed(ip); !decision.Allowed {
			s.audit.RateLimitExceeded(ip, ip, "oauth")
			return false, "Too many sign-in attempts from this address", nil
		}
		s.oauthLimiter.RecordAttempt(ip, true)
	}

	now := s.nowFn()
	s.mu.Lock()
	user, exists := s.users[normalized]
	if !exists {
		user = domain.User{
			Email:         normalized,
			PasswordHash:  unusablePassword(),
			DisplayName:   strings.TrimSpace(displayName),
			CreatedAt:     now,
			EmailVerified: true,
		}
	}
	if user.DisplayName == "" {
		user.DisplayName = normalized
	}
	user.LoginCount++
	user.LastLogin = &now
	s.users[normalized] = user
	persistErr := s.persistUsersLocked()
	s.mu.Unlock()
	if persistErr != nil {
		s.audit.SystemError(normalized, "external_login", persistErr)
		return false, "Could not complete sign-in, try again", nil
	}

	tokens, err := s.sessions.Create(user, true, ip, userAgent)
	if err != nil {
		s.audit.Log(domain.EventOAuthLoginFailure, domain.SeverityMedium, false, normalized, ip, userAgent, map[string]any{"provider": provider, "error": err.Error()})
		return false, "Could not open a session, try again", nil
	}

	s.setCurrent(normalized, tokens.SessionID)
	s.audit.Log(domain.EventOAuthLoginSuccess, domain.SeverityLow, true, normalized, ip, userAgent, map[string]any{"provider": provider})
	return true, fmt.Sprintf("Welcome, %s", user.DisplayName), &tokens
}

// Logout closes the named session. When it belongs to the current
// identity, the current identity is cleared too. The presented access
// token is blacklisted even if the session record is already gone.
func (s *Service) Logout(sessionID, accessToken, ip string) bool {
	if accessToken != "" {
		s.tokens.Blacklist(accessToken)
	}
	s.mu.Lock()
	var email string
	if s.current != nil && s.current.SessionID == sessionID {
		email = s.current.UserEmail
		s.current = nil
	}
	s.mu.Unlock()

	ok := s.sessions.Invalidate(sessionID, "logout")
	if ok && email != "" {
		s.audit.Logout(email, ip)
	}
	return ok
}

// RestoreSession re-establishes the current identity from a persisted
// session and access token, as on application start.
func (s *Service) RestoreSession(sessionID, accessToken string) bool {
	ok, claims := s.sessions.Validate(sessionID, accessToken)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[claims.Subject]; !exists {
		return false
	}
	s.current = &domain.Session{SessionID: sessionID, UserEmail: claims.Subject, UserName: claims.Name}
	s.logger.Info("session restored", "session_id", sessionID, "user_email", claims.Subject)
	return true
}

// RefreshToken exchanges a refresh token for a fresh access token on its
// owning session. Empty string means the refresh was rejected.
func (s *Service) RefreshToken(refreshToken, ip string) string {
	result := s.sessions.Refresh(refreshToken, ip)
	if result == nil {
		return ""
	}
	return result.AccessToken
}

// ChangePassword rotates the current user's password. Every other session
// for the account is closed.
func (s *Service) ChangePassword(currentPassword, newPassword, ip string) (bool, string) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false, "Sign in before changing the password"
	}
	email := s.current.UserEmail
	sessionID := s.current.SessionID
	user, exists := s.users[email]
	s.mu.Unlock()
	if !exists {
		return false, "Account no longer exists"
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		s.audit.Suspicious(email, ip, "password_change_wrong_current", nil)
		return false, "Current password is incorrect"
	}

	if ok, issues := s.policy.ValidateNewPassword(email, newPassword, currentPassword); !ok {
		s.audit.Log(domain.EventPasswordChange, domain.SeverityMedium, false, email, ip, "", map[string]any{"reason": "policy_rejected"})
		return false, strings.Join(issues, "; ")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.audit.SystemError(email, "change_password", err)
		return false, "Could not update the password, try again"
	}

	now := s.nowFn()
	s.mu.Lock()
	user = s.users[email]
	user.PasswordHash = hash
	user.PasswordChangedAt = now
	s.users[email] = user
	persistErr := s.persistUsersLocked()
	s.mu.Unlock()
	if persistErr != nil {
		s.audit.SystemError(email, "change_password", persistErr)
		return false, "Could not update the password, try again"
	}

	if err := s.policy.RecordHistory(email, hash); err != nil {
		s.logger.Error("record password history failed", "email", email, "error", err)
	}
	closed := s.sessions.InvalidateAllForUser(email, sessionID, "password changed")
	s.audit.PasswordChange(email, ip)
	s.logger.Info("password changed", "email", email, "other_sessions_closed", closed)
	return true, "Password updated"
}

// CurrentUser returns the profile of the signed-in user, or nil when no
// one is signed in.
func (s *Service) CurrentUser() *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	user, exists := s.users[s.current.UserEmail]
	if !exists {
		return nil
	}
	profile := profileOf(user)
	return &profile
}

// CurrentSessionID returns the signed-in session ID, empty when signed out.
func (s *Service) CurrentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.SessionID
}

// SecurityStatus reports everything an operator needs about one account.
func (s *Service) SecurityStatus(email string) SecurityStatus {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return SecurityStatus{UserEmail: email}
	}

	status := SecurityStatus{UserEmail: normalized}
	s.mu.Lock()
	user, exists := s.users[normalized]
	s.mu.Unlock()
	status.Exists = exists
	if exists {
		status.LastLogin = user.LastLogin
		status.LoginCount = user.LoginCount
	}

	limiter := s.limiter.Status(normalized)
	status.LockedOut = limiter.LockedOut
	status.UnlockIn = limiter.UnlockIn
	status.FailedAttempts = limiter.FailedAttempts
	status.ActiveSessions = len(s.sessions.UserSessions(normalized, true))
	status.Activity = s.audit.Summary(normalized, 7)
	status.RecentAnomalies = s.audit.DetectAnomalies(normalized, 7)
	return status
}

// Unlock clears a lockout for an account ahead of schedule.
func (s *Service) Unlock(email, actor string) bool {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return false
	}
	if !s.limiter.Unlock(normalized) {
		return false
	}
	s.audit.AccountUnlocked(normalized, actor)
	return true
}

// Sessions exposes the session manager for listing and administration.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Audit exposes the audit log for querying.
func (s *Service) Audit() *AuditLog { return s.audit }

// Policy exposes the policy engine for interactive strength feedback.
func (s *Service) Policy() *PolicyEngine { return s.policy }

func (s *Service) setCurrent(email, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &domain.Session{SessionID: sessionID, UserEmail: email}
}

// noteLockoutIfEngaged emits an account_locked event right after the
// limiter engages a lockout, so the trail shows when it happened.
func (s *Service) noteLockoutIfEngaged(email, ip string) {
	if st := s.limiter.Status(email); st.LockedOut {
		s.audit.AccountLocked(email, ip, fmt.Sprintf("%d failed attempts", st.FailedAttempts))
	}
}

func (s *Service) persistUsersLocked() error {
	return s.store.Save(usersNamespace, s.users)
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// unusablePassword is a marker no bcrypt comparison can ever match, so a
// provisioned external identity cannot sign in with a password.
func unusablePassword() string {
	return "!" + uuid.NewString()
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Minute {
		return d.Round(time.Minute)
	}
	return d.Round(time.Second)
}
