package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const auditNamespace = "audit_events"

// AuditLog is an append-only security event trail with bounded size. Every
// recorded event is also mirrored to the structured logger so operators
// can tail the journal without decrypting the store.
type AuditLog struct {
	cfg    AuditConfig
	store  ports.EncryptedStore
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	events []domain.AuditEvent
}

func NewAuditLog(cfg AuditConfig, store ports.EncryptedStore, logger *slog.Logger) (*AuditLog, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10_000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	a := &AuditLog{cfg: cfg, store: store, logger: logger, nowFn: time.Now}
	if err := store.Load(auditNamespace, &a.events); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load audit events: %w", err)
		}
		a.events = nil
	}
	return a, nil
}

// Log appends an event and returns its ID. Oldest events are dropped once
// the log exceeds its configured capacity.
func (a *AuditLog) Log(eventType domain.EventType, severity domain.Severity, success bool, userEmail, ip, userAgent string, details map[string]any) string {
	event := domain.AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: a.nowFn(),
		EventType: eventType,
		Severity:  severity,
		Success:   success,
		UserEmail: userEmail,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
	}

	a.mu.Lock()
	a.events = append(a.events, event)
	if excess := len(a.events) - a.cfg.MaxEvents; excess > 0 {
		a.events = append([]domain.AuditEvent(nil), a.events[excess:]...)
	}
	a.persistLocked()
	a.mu.Unlock()

	a.mirror(event)
	return event.EventID
}

func (a *AuditLog) mirror(event domain.AuditEvent) {
	level := slog.LevelInfo
	switch event.Severity {
	case domain.SeverityMedium:
		level = slog.LevelWarn
	case domain.SeverityHigh, domain.SeverityCritical:
		level = slog.LevelError
	}
	a.logger.Log(context.Background(), level, "audit event",
		"event_id", event.EventID,
		"event_type", string(event.EventType),
		"severity", string(event.Severity),
		"success", event.Success,
		"user_email", event.UserEmail,
		"ip_address", event.IPAddress)
}

// Typed helpers keep call sites short and the taxonomy consistent.

func (a *AuditLog) LoginSuccess(email, ip, userAgent, method string) {
	a.Log(domain.EventLoginSuccess, domain.SeverityLow, true, email, ip, userAgent, map[string]any{"method": method})
}

func (a *AuditLog) LoginFailure(email, ip, userAgent, reason string) {
	a.Log(domain.EventLoginFailure, domain.SeverityMedium, false, email, ip, userAgent, map[string]any{"reason": reason})
}

func (a *AuditLog) Logout(email, ip string) {
	a.Log(domain.EventLogout, domain.SeverityLow, true, email, ip, "", nil)
}

func (a *AuditLog) PasswordChange(email, ip string) {
	a.Log(domain.EventPasswordChange, domain.SeverityMedium, true, email, ip, "", nil)
}

func (a *AuditLog) AccountLocked(email, ip, reason string) {
	a.Log(domain.EventAccountLocked, domain.SeverityHigh, false, email, ip, "", map[string]any{"reason": reason})
}

func (a *AuditLog) AccountUnlocked(email, actor string) {
	a.Log(domain.EventAccountUnlocked, domain.SeverityMedium, true, email, "", "", map[string]any{"unlocked_by": actor})
}

func (a *AuditLog) RateLimitExceeded(key, ip, limitType string) {
	a.Log(domain.EventRateLimitExceeded, domain.SeverityMedium, false, key, ip, "", map[string]any{"limit_type": limitType})
}

func (a *AuditLog) SessionRefresh(email, ip, sessionID string) {
	a.Log(domain.EventSessionRefresh, domain.SeverityLow, true, email, ip, "", map[string]any{"session_id": sessionID})
}

func (a *AuditLog) SessionExpired(email, sessionID, reason string) {
	a.Log(domain.EventSessionExpired, domain.SeverityLow, false, email, "", "", map[string]any{"session_id": sessionID, "reason": reason})
}

func (a *AuditLog) Suspicious(email, ip, activity string, details map[string]any) {
	merged := map[string]any{"activity": activity}
	for k, v := range details {
		merged[k] = v
	}
	a.Log(domain.EventSuspiciousActivity, domain.SeverityHigh, false, email, ip, "", merged)
}

func (a *AuditLog) InvalidToken(email, ip, reason string) {
	a.Log(domain.EventInvalidToken, domain.SeverityMedium, false, email, ip, "", map[string]any{"reason": reason})
}

func (a *AuditLog) SystemError(email, operation string, err error) {
	a.Log(domain.EventSystemError, domain.SeverityHigh, false, email, "", "", map[string]any{"operation": operation, "error": err.Error()})
}

// Query returns events matching the filter, newest first, up to limit.
// A non-positive limit returns every match.
func (a *AuditLog) Query(filter AuditFilter, limit int) []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	var matched []domain.AuditEvent
	for i := len(a.events) - 1; i >= 0; i-- {
		event := a.events[i]
		if !filterMatches(filter, event) {
			continue
		}
		matched = append(matched, event)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched
}

func filterMatches(f AuditFilter, e domain.AuditEvent) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.UserEmail != "" && e.UserEmail != f.UserEmail {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Summary aggregates a user's events over the trailing day window.
func (a *AuditLog) Summary(email string, days int) ActivitySummary {
	if days <= 0 {
		days = 7
	}
	since := a.nowFn().AddDate(0, 0, -days)

	a.mu.Lock()
	defer a.mu.Unlock()

	summary := ActivitySummary{
		UserEmail:   email,
		WindowDays:  days,
		EventCounts: map[string]int{},
	}
	ipCounts := map[string]int{}
	for _, event := range a.events {
		if event.UserEmail != email || event.Timestamp.Before(since) {
			continue
		}
		summary.TotalEvents++
		summary.EventCounts[string(event.EventType)]++
		switch event.EventType {
		case domain.EventLoginSuccess, domain.EventOAuthLoginSuccess:
			summary.SuccessLogins++
		case domain.EventLoginFailure, domain.EventOAuthLoginFailure:
			summary.FailedLogins++
		case domain.EventPasswordChange:
			summary.PasswordChange++
		}
		if event.IPAddress != "" {
			ipCounts[event.IPAddress]++
		}
		ts := event.Timestamp
		if summary.LastActivity == nil || ts.After(*summary.LastActivity) {
			summary.LastActivity = &ts
		}
	}
	best := 0
	for ip, count := range ipCounts {
		summary.UniqueIPs = append(summary.UniqueIPs, ip)
		if count > best || (count == best && ip < summary.MostCommonIP) {
			summary.MostCommonIP = ip
			best = count
		}
	}
	sort.Strings(summary.UniqueIPs)
	return summary
}

// DetectAnomalies inspects a user's trailing window for suspicious
// patterns: login failure bursts, logins spread over many addresses, and
// a majority of activity in the small hours.
func (a *AuditLog) DetectAnomalies(email string, days int) []domain.Anomaly {
	if days <= 0 {
		days = 7
	}
	since := a.nowFn().AddDate(0, 0, -days)

	a.mu.Lock()
	failures := 0
	logins := 0
	nightLogins := 0
	ips := map[string]struct{}{}
	for _, event := range a.events {
		if event.UserEmail != email || event.Timestamp.Before(since) {
			continue
		}
		switch event.EventType {
		case domain.EventLoginFailure, domain.EventOAuthLoginFailure:
			failures++
		case domain.EventLoginSuccess, domain.EventOAuthLoginSuccess:
			logins++
			if hour := event.Timestamp.Hour(); hour < 6 {
				nightLogins++
			}
		}
		if event.IPAddress != "" {
			ips[event.IPAddress] = struct{}{}
		}
	}
	a.mu.Unlock()

	var anomalies []domain.Anomaly
	if failures > 10 {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "excessive_failed_logins",
			UserEmail:   email,
			Severity:    domain.SeverityHigh,
			Description: fmt.Sprintf("%d failed login attempts in the last %d days", failures, days),
			Count:       failures,
		})
	}
	if len(ips) > 5 {
		list := make([]string, 0, len(ips))
		for ip := range ips {
			list = append(list, ip)
		}
		sort.Strings(list)
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "multiple_ip_logins",
			UserEmail:   email,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("activity from %d distinct addresses in the last %d days", len(list), days),
			Count:       len(list),
			IPs:         list,
		})
	}
	if logins > 0 && nightLogins*2 > logins {
		anomalies = append(anomalies, domain.Anomaly{
			Type:        "unusual_login_hours",
			UserEmail:   email,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("%d of %d logins between 00:00 and 06:00", nightLogins, logins),
			Count:       nightLogins,
		})
	}
	return anomalies
}

// Purge drops events older than the retention period and returns how many
// were removed.
func (a *AuditLog) Purge() int {
	cutoff := a.nowFn().Add(-a.cfg.Retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.events[:0]
	for _, event := range a.events {
		if !event.Timestamp.Before(cutoff) {
			kept = append(kept, event)
		}
	}
	removed := len(a.events) - len(kept)
	if removed > 0 {
		a.events = append([]domain.AuditEvent(nil), kept...)
		a.persistLocked()
		a.logger.Info("audit purge", "removed", removed, "remaining", len(a.events))
	}
	return removed
}

// Stats summarizes the current log contents.
func (a *AuditLog) Stats() AuditStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AuditStats{
		TotalEvents: len(a.events),
		BySeverity:  map[string]int{},
		ByType:      map[string]int{},
	}
	for i, event := range a.events {
		if event.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		stats.BySeverity[string(event.Severity)]++
		stats.ByType[string(event.EventType)]++
		ts := event.Timestamp
		if i == 0 {
			stats.OldestEvent = &ts
		}
		if i == len(a.events)-1 {
			stats.NewestEvent = &ts
		}
	}
	return stats
}

func (a *AuditLog) persistLocked() {
	if err := a.store.Save(auditNamespace, a.events); err != nil {
		a.logger.Error("persist audit events failed", "error", err)
	}
}
