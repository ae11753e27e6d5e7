package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
// It merges file defaults and environment overrides so the same binary
// serves local development and packaged installs.
type Config struct {
	DataDir       string
	SecretService string
	LogLevel      string
	// MasterPassphrase, when set, derives the storage key from the
	// passphrase instead of generating random key material.
	MasterPassphrase string

	TokenIssuer string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	BcryptCost int

	PolicyMinLength       int
	PolicyMaxLength       int
	PolicyHistoryDepth    int
	PolicyExtraCommonFile string

	LoginThreshold   int
	LoginWindow      time.Duration
	LockoutBase      time.Duration
	LockoutMax       time.Duration
	OAuthIPThreshold int
	OAuthIPWindow    time.Duration

	SessionTTL         time.Duration
	RememberMeTTL      time.Duration
	MaxSessionsPerUser int

	AuditMaxEvents int
	AuditRetention time.Duration

	SweepInterval time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// env tags let deployment environments override individual keys without
// touching the file.
type configFile struct {
	Service struct {
		DataDir       string `yaml:"data_dir" env:"AUTHVAULT_DATA_DIR"`
		SecretService string `yaml:"secret_service" env:"AUTHVAULT_SECRET_SERVICE"`
		LogLevel      string `yaml:"log_level" env:"AUTHVAULT_LOG_LEVEL"`
		// Secret material has no place in a config file.
		MasterPassphrase string `yaml:"-" env:"AUTHVAULT_MASTER_PASSPHRASE"`
	} `yaml:"service"`
	Tokens struct {
		Issuer        string `yaml:"issuer" env:"AUTHVAULT_TOKEN_ISSUER"`
		AccessMinutes int    `yaml:"access_minutes" env:"AUTHVAULT_ACCESS_TOKEN_MINUTES"`
		RefreshDays   int    `yaml:"refresh_days" env:"AUTHVAULT_REFRESH_TOKEN_DAYS"`
	} `yaml:"tokens"`
	Passwords struct {
		BcryptCost      int    `yaml:"bcrypt_cost" env:"AUTHVAULT_BCRYPT_COST"`
		MinLength       int    `yaml:"min_length" env:"AUTHVAULT_PASSWORD_MIN_LENGTH"`
		MaxLength       int    `yaml:"max_length" env:"AUTHVAULT_PASSWORD_MAX_LENGTH"`
		HistoryDepth    int    `yaml:"history_depth" env:"AUTHVAULT_PASSWORD_HISTORY_DEPTH"`
		ExtraCommonFile string `yaml:"extra_common_file" env:"AUTHVAULT_EXTRA_COMMON_FILE"`
	} `yaml:"passwords"`
	RateLimits struct {
		LoginThreshold     int `yaml:"login_threshold" env:"AUTHVAULT_LOGIN_THRESHOLD"`
		LoginWindowMinutes int `yaml:"login_window_minutes" env:"AUTHVAULT_LOGIN_WINDOW_MINUTES"`
		LockoutBaseMinutes int `yaml:"lockout_base_minutes" env:"AUTHVAULT_LOCKOUT_BASE_MINUTES"`
		LockoutMaxHours    int `yaml:"lockout_max_hours" env:"AUTHVAULT_LOCKOUT_MAX_HOURS"`
		OAuthIPThreshold   int `yaml:"oauth_ip_threshold" env:"AUTHVAULT_OAUTH_IP_THRESHOLD"`
		OAuthIPWindowMins  int `yaml:"oauth_ip_window_minutes" env:"AUTHVAULT_OAUTH_IP_WINDOW_MINUTES"`
	} `yaml:"rate_limits"`
	Sessions struct {
		TimeoutMinutes int `yaml:"timeout_minutes" env:"AUTHVAULT_SESSION_TIMEOUT_MINUTES"`
		RememberMeDays int `yaml:"remember_me_days" env:"AUTHVAULT_REMEMBER_ME_DAYS"`
		MaxPerUser     int `yaml:"max_per_user" env:"AUTHVAULT_MAX_SESSIONS_PER_USER"`
	} `yaml:"sessions"`
	Audit struct {
		MaxEvents     int `yaml:"max_events" env:"AUTHVAULT_AUDIT_MAX_EVENTS"`
		RetentionDays int `yaml:"retention_days" env:"AUTHVAULT_AUDIT_RETENTION_DAYS"`
	} `yaml:"audit"`
	Maintenance struct {
		SweepMinutes int `yaml:"sweep_minutes" env:"AUTHVAULT_SWEEP_MINUTES"`
	} `yaml:"maintenance"`
}

func defaultsFile() configFile {
	var f configFile
	f.Service.DataDir = defaultDataDir()
	f.Service.SecretService = "authvault"
	f.Service.LogLevel = "info"
	f.Tokens.Issuer = "authvault"
	f.Tokens.AccessMinutes = 240
	f.Tokens.RefreshDays = 30
	f.Passwords.BcryptCost = 12
	f.Passwords.MinLength = 8
	f.Passwords.MaxLength = 128
	f.Passwords.HistoryDepth = 5
	f.RateLimits.LoginThreshold = 5
	f.RateLimits.LoginWindowMinutes = 15
	f.RateLimits.LockoutBaseMinutes = 30
	f.RateLimits.LockoutMaxHours = 24
	f.RateLimits.OAuthIPThreshold = 10
	f.RateLimits.OAuthIPWindowMins = 5
	f.Sessions.TimeoutMinutes = 240
	f.Sessions.RememberMeDays = 30
	f.Sessions.MaxPerUser = 5
	f.Audit.MaxEvents = 10_000
	f.Audit.RetentionDays = 90
	f.Maintenance.SweepMinutes = 5
	return f
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".authvault"
	}
	return home + string(os.PathSeparator) + ".authvault"
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	f := defaultsFile()

	if raw, err := os.ReadFile(path); err == nil {
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
	}

	if err := env.Parse(&f); err != nil {
		return Config{}, fmt.Errorf("parse environment overrides: %w", err)
	}

	cfg := Config{
		DataDir:               f.Service.DataDir,
		SecretService:         f.Service.SecretService,
		LogLevel:              f.Service.LogLevel,
		MasterPassphrase:      f.Service.MasterPassphrase,
		TokenIssuer:           f.Tokens.Issuer,
		AccessTTL:             time.Duration(f.Tokens.AccessMinutes) * time.Minute,
		RefreshTTL:            time.Duration(f.Tokens.RefreshDays) * 24 * time.Hour,
		BcryptCost:            f.Passwords.BcryptCost,
		PolicyMinLength:       f.Passwords.MinLength,
		PolicyMaxLength:       f.Passwords.MaxLength,
		PolicyHistoryDepth:    f.Passwords.HistoryDepth,
		PolicyExtraCommonFile: f.Passwords.ExtraCommonFile,
		LoginThreshold:        f.RateLimits.LoginThreshold,
		LoginWindow:           time.Duration(f.RateLimits.LoginWindowMinutes) * time.Minute,
		LockoutBase:           time.Duration(f.RateLimits.LockoutBaseMinutes) * time.Minute,
		LockoutMax:            time.Duration(f.RateLimits.LockoutMaxHours) * time.Hour,
		OAuthIPThreshold:      f.RateLimits.OAuthIPThreshold,
		OAuthIPWindow:         time.Duration(f.RateLimits.OAuthIPWindowMins) * time.Minute,
		SessionTTL:            time.Duration(f.Sessions.TimeoutMinutes) * time.Minute,
		RememberMeTTL:         time.Duration(f.Sessions.RememberMeDays) * 24 * time.Hour,
		MaxSessionsPerUser:    f.Sessions.MaxPerUser,
		AuditMaxEvents:        f.Audit.MaxEvents,
		AuditRetention:        time.Duration(f.Audit.RetentionDays) * 24 * time.Hour,
		SweepInterval:         time.Duration(f.Maintenance.SweepMinutes) * time.Minute,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.TokenIssuer == "" {
		return fmt.Errorf("token issuer must not be empty")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("refresh lifetime must exceed access lifetime")
	}
	if c.BcryptCost < 10 || c.BcryptCost > 18 {
		return fmt.Errorf("bcrypt cost %d outside supported range [10,18]", c.BcryptCost)
	}
	if c.LoginThreshold <= 0 || c.LoginWindow <= 0 {
		return fmt.Errorf("login rate limits must be positive")
	}
	if c.MaxSessionsPerUser <= 0 {
		return fmt.Errorf("max sessions per user must be positive")
	}
	return nil
}
