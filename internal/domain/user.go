package domain

import "time"

// User is the canonical local identity aggregate.
// It keeps only authentication-relevant state; the normalized email is the
// unique key and everything else hangs off it.
type User struct {
	Email             string     `json:"email"`
	PasswordHash      string     `json:"password_hash"`
	DisplayName       string     `json:"display_name"`
	CreatedAt         time.Time  `json:"created_at"`
	EmailVerified     bool       `json:"email_verified"`
	LoginCount        int        `json:"login_count"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
}

// TokenType discriminates the two halves of an issued token pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the fixed claim set carried by every signed token.
// Optional fields are explicit; callers never dig through dynamic maps.
type TokenClaims struct {
	Subject   string    `json:"sub"`
	Name      string    `json:"name,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	Issuer    string    `json:"iss"`
	TokenType TokenType `json:"type"`
	TokenID   string    `json:"jti"`
}

// Session models one login session. A user may hold several concurrently,
// bounded by the session manager; RememberMe sessions intentionally outlive
// their short-lived access token and are refreshed transparently.
type Session struct {
	SessionID          string     `json:"session_id"`
	UserEmail          string     `json:"user_email"`
	UserName           string     `json:"user_name,omitempty"`
	AccessToken        string     `json:"access_token,omitempty"`
	RefreshToken       string     `json:"refresh_token,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	LastActivity       time.Time  `json:"last_activity"`
	RememberMe         bool       `json:"remember_me"`
	IPAddress          string     `json:"ip_address,omitempty"`
	UserAgent          string     `json:"user_agent,omitempty"`
	IsActive           bool       `json:"is_active"`
	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty"`
	InvalidationReason string     `json:"invalidation_reason,omitempty"`
}

// Sanitized returns a copy safe to hand to callers: token material stripped.
func (s Session) Sanitized() Session {
	s.AccessToken = ""
	s.RefreshToken = ""
	return s
}
