package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AccessTTL != 4*time.Hour {
		t.Errorf("AccessTTL = %s, want 4h", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Errorf("RefreshTTL = %s, want 720h", cfg.RefreshTTL)
	}
	if cfg.LoginThreshold != 5 || cfg.LockoutBase != 30*time.Minute || cfg.LockoutMax != 24*time.Hour {
		t.Errorf("unexpected lockout defaults %+v", cfg)
	}
	if cfg.MaxSessionsPerUser != 5 || cfg.AuditMaxEvents != 10_000 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
service:
  data_dir: /tmp/authvault-test
tokens:
  access_minutes: 60
rate_limits:
  login_threshold: 3
sessions:
  max_per_user: 2
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataDir != "/tmp/authvault-test" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.AccessTTL != time.Hour {
		t.Errorf("AccessTTL = %s, want 1h", cfg.AccessTTL)
	}
	if cfg.LoginThreshold != 3 || cfg.MaxSessionsPerUser != 2 {
		t.Errorf("file overrides not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Errorf("RefreshTTL = %s, want default", cfg.RefreshTTL)
	}
}

func TestLoadConfigEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tokens:\n  access_minutes: 60\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTHVAULT_ACCESS_TOKEN_MINUTES", "120")
	t.Setenv("AUTHVAULT_TOKEN_ISSUER", "authvault-staging")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AccessTTL != 2*time.Hour {
		t.Errorf("AccessTTL = %s, want 2h", cfg.AccessTTL)
	}
	if cfg.TokenIssuer != "authvault-staging" {
		t.Errorf("TokenIssuer = %s", cfg.TokenIssuer)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"access exceeds refresh", "tokens:\n  access_minutes: 999999\n"},
		{"bcrypt cost too low", "passwords:\n  bcrypt_cost: 4\n"},
		{"zero threshold", "rate_limits:\n  login_threshold: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
