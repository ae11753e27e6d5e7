package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/authvault/internal/ports"
)

// Sweeper runs the periodic maintenance pass: expired lockouts, expired
// sessions, token blacklist compaction and audit retention.
type Sweeper struct {
	logger       *slog.Logger
	interval     time.Duration
	limiter      *RateLimiter
	oauthLimiter *RateLimiter
	sessions     *SessionManager
	tokens       ports.TokenMinter
	audit        *AuditLog
}

func NewSweeper(
	logger *slog.Logger,
	interval time.Duration,
	limiter *RateLimiter,
	oauthLimiter *RateLimiter,
	sessions *SessionManager,
	tokens ports.TokenMinter,
	audit *AuditLog,
) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		logger:       logger,
		interval:     interval,
		limiter:      limiter,
		oauthLimiter: oauthLimiter,
		sessions:     sessions,
		tokens:       tokens,
		audit:        audit,
	}
}

// Run executes the sweep loop until context cancellation. The first sweep
// happens immediately so stale state from a previous run is cleared on
// start.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.SweepOnce()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce performs a single maintenance pass.
func (w *Sweeper) SweepOnce() {
	start := time.Now()
	expiredLockouts := w.limiter.Sweep()
	if w.oauthLimiter != nil {
		expiredLockouts += w.oauthLimiter.Sweep()
	}
	expiredSessions := w.sessions.CleanupExpired()
	w.tokens.CompactBlacklist()
	purgedEvents := w.audit.Purge()

	if expiredLockouts > 0 || expiredSessions > 0 || purgedEvents > 0 {
		w.logger.Info("maintenance sweep",
			"expired_lockouts", expiredLockouts,
			"expired_sessions", expiredSessions,
			"purged_events", purgedEvents,
			"elapsed", time.Since(start).String())
	}
}
