package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/viralforge/authvault/internal/adapters/secrets"
	"github.com/viralforge/authvault/internal/adapters/security"
	"github.com/viralforge/authvault/internal/adapters/storage"
	"github.com/viralforge/authvault/internal/application"
	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const jwtSecretName = "jwt_signing_key"

// Runtime wires the whole subsystem together: secret material, the
// encrypted store, every application component and the maintenance loop.
type Runtime struct {
	cfg     Config
	logger  *slog.Logger
	service *application.Service
	sweeper *application.Sweeper
}

func NewRuntime(configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	logger.Info("bootstrapping authvault", "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	secretStore := secrets.Select(cfg.SecretService, logger)
	if !secretStore.Persistent() {
		logger.Warn("OS keyring unavailable, secrets held in process only",
			"consequence", "sessions and encrypted data will not survive a restart unless key env vars are set")
	}

	storageKey, err := resolveStorageKey(cfg, secretStore)
	if err != nil {
		return nil, fmt.Errorf("resolve storage key: %w", err)
	}
	store, err := storage.NewFileStore(filepath.Join(cfg.DataDir, "secure"), storageKey)
	if err != nil {
		return nil, fmt.Errorf("open encrypted store: %w", err)
	}

	jwtSecret, err := loadOrCreateJWTSecret(secretStore)
	if err != nil {
		return nil, fmt.Errorf("resolve jwt secret: %w", err)
	}

	tokens, err := security.NewTokenService(jwtSecret, security.TokenConfig{
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost)

	policy, err := application.NewPolicyEngine(application.PolicyConfig{
		MinLength:       cfg.PolicyMinLength,
		MaxLength:       cfg.PolicyMaxLength,
		RequireUpper:    true,
		RequireLower:    true,
		RequireDigit:    true,
		RequireSpecial:  true,
		HistoryDepth:    cfg.PolicyHistoryDepth,
		ExtraCommonFile: cfg.PolicyExtraCommonFile,
	}, hasher, store, logger)
	if err != nil {
		return nil, fmt.Errorf("init policy engine: %w", err)
	}

	limiter, err := application.NewRateLimiter(application.RateLimitConfig{
		Threshold:   cfg.LoginThreshold,
		Window:      cfg.LoginWindow,
		BaseLockout: cfg.LockoutBase,
		MaxLockout:  cfg.LockoutMax,
	}, "login_limits", store, logger)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}

	oauthLimiter, err := application.NewRateLimiter(application.RateLimitConfig{
		Threshold: cfg.OAuthIPThreshold,
		Window:    cfg.OAuthIPWindow,
	}, "oauth_limits", store, logger)
	if err != nil {
		return nil, fmt.Errorf("init oauth limiter: %w", err)
	}

	audit, err := application.NewAuditLog(application.AuditConfig{
		MaxEvents: cfg.AuditMaxEvents,
		Retention: cfg.AuditRetention,
	}, store, logger)
	if err != nil {
		return nil, fmt.Errorf("init audit log: %w", err)
	}

	sessions, err := application.NewSessionManager(application.SessionConfig{
		DefaultTTL:    cfg.SessionTTL,
		RememberMeTTL: cfg.RememberMeTTL,
		MaxPerUser:    cfg.MaxSessionsPerUser,
	}, tokens, store, audit, logger)
	if err != nil {
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	service, err := application.NewService(application.Dependencies{
		Policy:       policy,
		Limiter:      limiter,
		OAuthLimiter: oauthLimiter,
		Tokens:       tokens,
		Sessions:     sessions,
		Audit:        audit,
		Store:        store,
		Hasher:       hasher,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init account service: %w", err)
	}

	sweeper := application.NewSweeper(logger, cfg.SweepInterval, limiter, oauthLimiter, sessions, tokens, audit)

	return &Runtime{cfg: cfg, logger: logger, service: service, sweeper: sweeper}, nil
}

// Service exposes the account facade to the CLI layer.
func (r *Runtime) Service() *application.Service { return r.service }

// Logger exposes the runtime logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// Run starts the maintenance loop and blocks until a shutdown signal.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := r.sweeper.Run(ctx)
	if errors.Is(err, context.Canceled) {
		r.logger.Info("shutdown signal received")
		return nil
	}
	return err
}

// SweepOnce runs a single maintenance pass, for one-shot CLI invocations.
func (r *Runtime) SweepOnce() { r.sweeper.SweepOnce() }

// resolveStorageKey prefers a passphrase-derived key when the operator set
// one; the salt is generated once and kept in the secret store so the same
// passphrase always derives the same key. Without a passphrase a random key
// is generated and stored directly.
func resolveStorageKey(cfg Config, store ports.SecretStore) ([]byte, error) {
	if cfg.MasterPassphrase == "" {
		return storage.LoadOrCreateKey(store, "storage_key")
	}
	salt, err := loadOrCreateSalt(store, "storage_salt")
	if err != nil {
		return nil, err
	}
	return storage.KeyFromPassphrase(cfg.MasterPassphrase, salt)
}

func loadOrCreateSalt(store ports.SecretStore, name string) ([]byte, error) {
	encoded, err := store.Get(name)
	if err == nil {
		salt, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil || len(salt) < 16 {
			return nil, fmt.Errorf("secret %s holds an invalid salt", name)
		}
		return salt, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := store.Set(name, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("persist salt: %w", err)
	}
	return salt, nil
}

func loadOrCreateJWTSecret(store ports.SecretStore) ([]byte, error) {
	value, err := store.Get(jwtSecretName)
	if err == nil {
		decoded, decodeErr := base64.StdEncoding.DecodeString(value)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: stored jwt secret is not valid base64", domain.ErrStorageCorrupted)
		}
		return decoded, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := store.Set(jwtSecretName, base64.StdEncoding.EncodeToString(secret)); err != nil {
		return nil, fmt.Errorf("store jwt secret: %w", err)
	}
	return secret, nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
