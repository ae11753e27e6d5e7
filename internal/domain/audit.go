package domain

import "time"

// EventType categorizes security-relevant occurrences for the audit trail.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventLogout             EventType = "logout"
	EventSignup             EventType = "signup"
	EventPasswordChange     EventType = "password_change"
	EventAccountLocked      EventType = "account_locked"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventOAuthLoginSuccess  EventType = "oauth_login_success"
	EventOAuthLoginFailure  EventType = "oauth_login_failure"
	EventSessionExpired     EventType = "session_expired"
	EventSessionRefresh     EventType = "session_refresh"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventInvalidToken       EventType = "invalid_token"
	EventPermissionDenied   EventType = "permission_denied"
	EventSystemError        EventType = "system_error"
)

// Severity ranks audit events for triage and for the operational log mirror.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AuditEvent is one immutable record in the security trail.
type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Severity  Severity       `json:"severity"`
	Success   bool           `json:"success"`
	UserEmail string         `json:"user_email,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Anomaly is an advisory finding from the audit heuristics.
// Detection never blocks an action; it only surfaces patterns worth a look.
type Anomaly struct {
	Type        string   `json:"type"`
	UserEmail   string   `json:"user_email"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Count       int      `json:"count,omitempty"`
	IPs         []string `json:"ips,omitempty"`
}
