package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/viralforge/authvault/internal/domain"
)

func TestLogAndQueryFilters(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))

	audit.LoginSuccess("alice@example.com", "198.51.100.1", "cli", "password")
	audit.LoginFailure("alice@example.com", "198.51.100.1", "cli", "invalid_password")
	audit.LoginFailure("bob@example.com", "198.51.100.2", "cli", "user_not_found")
	audit.PasswordChange("alice@example.com", "198.51.100.1")

	if got := audit.Query(AuditFilter{UserEmail: "alice@example.com"}, 0); len(got) != 3 {
		t.Errorf("user filter matched %d events, want 3", len(got))
	}
	if got := audit.Query(AuditFilter{EventType: domain.EventLoginFailure}, 0); len(got) != 2 {
		t.Errorf("type filter matched %d events, want 2", len(got))
	}
	failed := false
	if got := audit.Query(AuditFilter{Success: &failed}, 0); len(got) != 2 {
		t.Errorf("success filter matched %d events, want 2", len(got))
	}
	if got := audit.Query(AuditFilter{IPAddress: "198.51.100.2"}, 0); len(got) != 1 {
		t.Errorf("ip filter matched %d events, want 1", len(got))
	}
}

func TestQueryNewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))

	for i := 0; i < 5; i++ {
		audit.Log(domain.EventLoginFailure, domain.SeverityMedium, false, "alice@example.com", fmt.Sprintf("10.0.0.%d", i), "", nil)
	}
	got := audit.Query(AuditFilter{}, 2)
	if len(got) != 2 {
		t.Fatalf("limit ignored: got %d events", len(got))
	}
	if got[0].IPAddress != "10.0.0.4" || got[1].IPAddress != "10.0.0.3" {
		t.Errorf("not newest first: %s, %s", got[0].IPAddress, got[1].IPAddress)
	}
}

func TestCapacityDropsOldest(t *testing.T) {
	t.Parallel()
	audit, err := NewAuditLog(AuditConfig{MaxEvents: 3, Retention: time.Hour}, newTestStore(t), testLogger())
	if err != nil {
		t.Fatalf("NewAuditLog: %v", err)
	}

	for i := 0; i < 5; i++ {
		audit.Log(domain.EventLogout, domain.SeverityLow, true, fmt.Sprintf("u%d@example.com", i), "", "", nil)
	}
	stats := audit.Stats()
	if stats.TotalEvents != 3 {
		t.Fatalf("capacity not enforced: %d events", stats.TotalEvents)
	}
	if stats.Succeeded != 3 || stats.Failed != 0 {
		t.Errorf("outcome counts = %d/%d, want 3/0", stats.Succeeded, stats.Failed)
	}
	if got := audit.Query(AuditFilter{UserEmail: "u0@example.com"}, 0); len(got) != 0 {
		t.Error("oldest event not dropped")
	}
	if got := audit.Query(AuditFilter{UserEmail: "u4@example.com"}, 0); len(got) != 1 {
		t.Error("newest event missing")
	}
}

func TestPurgeHonorsRetention(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))
	now := time.Now()
	audit.nowFn = func() time.Time { return now }

	audit.Logout("old@example.com", "")
	now = now.Add(91 * 24 * time.Hour)
	audit.Logout("fresh@example.com", "")

	if removed := audit.Purge(); removed != 1 {
		t.Fatalf("Purge removed %d, want 1", removed)
	}
	if got := audit.Query(AuditFilter{UserEmail: "old@example.com"}, 0); len(got) != 0 {
		t.Error("expired event survived purge")
	}
	if got := audit.Query(AuditFilter{UserEmail: "fresh@example.com"}, 0); len(got) != 1 {
		t.Error("fresh event purged")
	}
}

func TestEventsSurviveRestart(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	audit := newTestAudit(t, store)
	audit.LoginSuccess("alice@example.com", "198.51.100.1", "cli", "password")

	reloaded := newTestAudit(t, store)
	if got := reloaded.Query(AuditFilter{UserEmail: "alice@example.com"}, 0); len(got) != 1 {
		t.Errorf("events lost across restart: %d", len(got))
	}
}

func TestDetectAnomaliesFailureBurst(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))
	const email = "victim@example.com"

	for i := 0; i < 11; i++ {
		audit.LoginFailure(email, "198.51.100.1", "", "invalid_password")
	}
	anomalies := audit.DetectAnomalies(email, 7)
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1: %+v", len(anomalies), anomalies)
	}
	a := anomalies[0]
	if a.Type != "excessive_failed_logins" || a.Severity != domain.SeverityHigh || a.Count != 11 {
		t.Errorf("unexpected anomaly %+v", a)
	}
}

func TestDetectAnomaliesManyAddresses(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))
	const email = "roamer@example.com"

	for i := 0; i < 6; i++ {
		audit.LoginSuccess(email, fmt.Sprintf("203.0.113.%d", i), "cli", "password")
	}
	var found *domain.Anomaly
	for _, a := range audit.DetectAnomalies(email, 7) {
		if a.Type == "multiple_ip_logins" {
			found = &a
			break
		}
	}
	if found == nil {
		t.Fatal("address anomaly not detected")
	}
	if found.Count != 6 || len(found.IPs) != 6 || found.Severity != domain.SeverityMedium {
		t.Errorf("unexpected anomaly %+v", found)
	}
}

func TestDetectAnomaliesNightLogins(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))
	const email = "owl@example.com"

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	fake := day.Add(3 * time.Hour)
	audit.nowFn = func() time.Time { return fake }
	audit.LoginSuccess(email, "198.51.100.1", "", "password")
	fake = day.Add(4 * time.Hour)
	audit.LoginSuccess(email, "198.51.100.1", "", "password")
	fake = day.Add(14 * time.Hour)
	audit.LoginSuccess(email, "198.51.100.1", "", "password")

	var found bool
	for _, a := range audit.DetectAnomalies(email, 7) {
		if a.Type == "unusual_login_hours" {
			found = true
			if a.Count != 2 {
				t.Errorf("night login count = %d, want 2", a.Count)
			}
		}
	}
	if !found {
		t.Error("night-hours anomaly not detected")
	}
}

func TestSummaryAggregates(t *testing.T) {
	t.Parallel()
	audit := newTestAudit(t, newTestStore(t))
	const email = "alice@example.com"

	audit.LoginSuccess(email, "198.51.100.1", "cli", "password")
	audit.LoginFailure(email, "198.51.100.2", "cli", "invalid_password")
	audit.PasswordChange(email, "198.51.100.1")
	audit.LoginSuccess("other@example.com", "198.51.100.9", "cli", "password")

	summary := audit.Summary(email, 7)
	if summary.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", summary.TotalEvents)
	}
	if summary.SuccessLogins != 1 || summary.FailedLogins != 1 || summary.PasswordChange != 1 {
		t.Errorf("unexpected counts %+v", summary)
	}
	if len(summary.UniqueIPs) != 2 {
		t.Errorf("UniqueIPs = %v, want 2 entries", summary.UniqueIPs)
	}
	if summary.MostCommonIP != "198.51.100.1" {
		t.Errorf("MostCommonIP = %q, want 198.51.100.1", summary.MostCommonIP)
	}
	if summary.LastActivity == nil {
		t.Error("LastActivity not set")
	}
}
