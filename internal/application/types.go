package application

import (
	"time"

	"github.com/viralforge/authvault/internal/domain"
)

// PolicyConfig controls password acceptance rules.
type PolicyConfig struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	HistoryDepth   int
	// ExtraCommonFile optionally extends the built-in common-password
	// list, one entry per line.
	ExtraCommonFile string
}

// RateLimitConfig controls attempt throttling and lockout escalation for
// one limiter instance. A zero BaseLockout disables lockouts entirely and
// the limiter only enforces the sliding window.
type RateLimitConfig struct {
	Threshold   int
	Window      time.Duration
	BaseLockout time.Duration
	MaxLockout  time.Duration
}

type AuditConfig struct {
	MaxEvents int
	Retention time.Duration
}

type SessionConfig struct {
	DefaultTTL    time.Duration
	RememberMeTTL time.Duration
	MaxPerUser    int
}

// StrengthBucket labels for password scores.
const (
	StrengthVeryWeak   = "Very Weak"
	StrengthWeak       = "Weak"
	StrengthModerate   = "Moderate"
	StrengthStrong     = "Strong"
	StrengthVeryStrong = "Very Strong"
)

// StrengthReport is the result of scoring a candidate password.
type StrengthReport struct {
	Score      int      `json:"score"`
	Bucket     string   `json:"bucket"`
	Acceptable bool     `json:"acceptable"`
	Feedback   []string `json:"feedback,omitempty"`
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// KeyStatus reports the limiter view of a single key.
type KeyStatus struct {
	Key               string        `json:"key"`
	LockedOut         bool          `json:"locked_out"`
	UnlockIn          time.Duration `json:"unlock_in,omitempty"`
	FailedAttempts    int           `json:"failed_attempts"`
	RecentAttempts    int           `json:"recent_attempts"`
	AttemptsRemaining int           `json:"attempts_remaining"`
}

// LimiterStats summarizes limiter state across all keys.
type LimiterStats struct {
	TrackedKeys   int `json:"tracked_keys"`
	ActiveLockout int `json:"active_lockouts"`
}

// AuditFilter narrows Query results. Zero values match everything.
type AuditFilter struct {
	EventType domain.EventType `json:"event_type,omitempty"`
	Severity  domain.Severity  `json:"severity,omitempty"`
	UserEmail string           `json:"user_email,omitempty"`
	IPAddress string           `json:"ip_address,omitempty"`
	Success   *bool            `json:"success,omitempty"`
	Since     time.Time        `json:"since,omitempty"`
	Until     time.Time        `json:"until,omitempty"`
}

// ActivitySummary aggregates a user's recent audit trail.
type ActivitySummary struct {
	UserEmail      string         `json:"user_email"`
	WindowDays     int            `json:"window_days"`
	TotalEvents    int            `json:"total_events"`
	SuccessLogins  int            `json:"success_logins"`
	FailedLogins   int            `json:"failed_logins"`
	PasswordChange int            `json:"password_changes"`
	UniqueIPs      []string       `json:"unique_ips"`
	MostCommonIP   string         `json:"most_common_ip,omitempty"`
	EventCounts    map[string]int `json:"event_counts"`
	LastActivity   *time.Time     `json:"last_activity,omitempty"`
}

// AuditStats summarizes the whole event log.
type AuditStats struct {
	TotalEvents int            `json:"total_events"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	BySeverity  map[string]int `json:"by_severity"`
	ByType      map[string]int `json:"by_type"`
	OldestEvent *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent *time.Time     `json:"newest_event,omitempty"`
}

// SessionTokens is what a caller holds after opening a session.
type SessionTokens struct {
	SessionID    string    `json:"session_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStats summarizes the session table.
type SessionStats struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	RememberMe    int            `json:"remember_me"`
	UsersWithOpen map[string]int `json:"users_with_open,omitempty"`
}

// SecurityStatus is the admin view of one account.
type SecurityStatus struct {
	UserEmail       string           `json:"user_email"`
	Exists          bool             `json:"exists"`
	LockedOut       bool             `json:"locked_out"`
	UnlockIn        time.Duration    `json:"unlock_in,omitempty"`
	FailedAttempts  int              `json:"failed_attempts"`
	ActiveSessions  int              `json:"active_sessions"`
	LastLogin       *time.Time       `json:"last_login,omitempty"`
	LoginCount      int              `json:"login_count"`
	Activity        ActivitySummary  `json:"activity"`
	RecentAnomalies []domain.Anomaly `json:"recent_anomalies,omitempty"`
}

// UserProfile is the external view of an account, never carrying the hash.
type UserProfile struct {
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name"`
	CreatedAt         time.Time  `json:"created_at"`
	EmailVerified     bool       `json:"email_verified"`
	LoginCount        int        `json:"login_count"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
}

func profileOf(u domain.User) UserProfile {
	return UserProfile{
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		CreatedAt:         u.CreatedAt,
		EmailVerified:     u.EmailVerified,
		LoginCount:        u.LoginCount,
		LastLogin:         u.LastLogin,
		PasswordChangedAt: u.PasswordChangedAt,
	}
}
