package application

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

// limiterState is the persisted subset of limiter data. Sliding-window
// timestamps are short-lived and rebuilt empty after a restart; lockouts
// and failure counters survive so a restart cannot bypass a lockout.
type limiterState struct {
	Lockouts map[string]time.Time `json:"lockouts"`
	Failures map[string]int       `json:"failed_attempts"`
}

// RateLimiter enforces a sliding attempt window per key and escalating
// lockouts after repeated failures. Keys are typically account emails or
// client IPs depending on the instance.
type RateLimiter struct {
	cfg       RateLimitConfig
	namespace string
	store     ports.EncryptedStore
	logger    *slog.Logger
	nowFn     func() time.Time

	mu       sync.Mutex
	windows  map[string][]time.Time
	failures map[string]int
	lockouts map[string]time.Time
}

func NewRateLimiter(cfg RateLimitConfig, namespace string, store ports.EncryptedStore, logger *slog.Logger) (*RateLimiter, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxLockout <= 0 {
		cfg.MaxLockout = 24 * time.Hour
	}
	l := &RateLimiter{
		cfg:       cfg,
		namespace: namespace,
		store:     store,
		logger:    logger,
		nowFn:     time.Now,
		windows:   map[string][]time.Time{},
		failures:  map[string]int{},
		lockouts:  map[string]time.Time{},
	}
	var state limiterState
	if err := store.Load(namespace, &state); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load limiter state %s: %w", namespace, err)
		}
	} else {
		if state.Lockouts != nil {
			l.lockouts = state.Lockouts
		}
		if state.Failures != nil {
			l.failures = state.Failures
		}
	}
	return l, nil
}

// CheckAllowed reports whether an attempt for key may proceed right now.
// It does not record the attempt.
func (l *RateLimiter) CheckAllowed(key string) Decision {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.lockouts[key]; ok {
		if now.Before(until) {
			return Decision{
				Allowed:    false,
				Reason:     "account temporarily locked",
				RetryAfter: until.Sub(now),
			}
		}
		delete(l.lockouts, key)
		delete(l.failures, key)
		l.persistLocked()
		l.logger.Info("lockout expired", "namespace", l.namespace, "key", key)
	}

	window := l.pruneWindowLocked(key, now)
	if len(window) >= l.cfg.Threshold {
		retry := l.cfg.Window - now.Sub(window[0])
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:    false,
			Reason:     "too many attempts, slow down",
			RetryAfter: retry,
		}
	}
	return Decision{Allowed: true}
}

// RecordAttempt registers the outcome of an attempt. A success clears the
// failure counter and any expired lockout bookkeeping. A failure past the
// threshold triggers a lockout whose duration doubles with every further
// failure, capped at MaxLockout.
func (l *RateLimiter) RecordAttempt(key string, success bool) {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	window := l.pruneWindowLocked(key, now)
	l.windows[key] = append(window, now)

	if success {
		if l.failures[key] > 0 || !l.lockouts[key].IsZero() {
			delete(l.failures, key)
			delete(l.lockouts, key)
			l.persistLocked()
		}
		return
	}

	l.failures[key]++
	count := l.failures[key]
	if l.cfg.BaseLockout > 0 && count >= l.cfg.Threshold {
		lockout := l.cfg.BaseLockout << (count - l.cfg.Threshold)
		if lockout > l.cfg.MaxLockout || lockout <= 0 {
			lockout = l.cfg.MaxLockout
		}
		l.lockouts[key] = now.Add(lockout)
		l.logger.Warn("lockout engaged",
			"namespace", l.namespace,
			"key", key,
			"failed_attempts", count,
			"duration", lockout.String())
	}
	l.persistLocked()
}

// Status reports the limiter view of one key without mutating state.
func (l *RateLimiter) Status(key string) KeyStatus {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	st := KeyStatus{Key: key, FailedAttempts: l.failures[key]}
	if until, ok := l.lockouts[key]; ok && now.Before(until) {
		st.LockedOut = true
		st.UnlockIn = until.Sub(now)
	}
	recent := 0
	for _, ts := range l.windows[key] {
		if now.Sub(ts) < l.cfg.Window {
			recent++
		}
	}
	st.RecentAttempts = recent
	st.AttemptsRemaining = l.cfg.Threshold - recent
	if st.AttemptsRemaining < 0 {
		st.AttemptsRemaining = 0
	}
	return st
}

// Unlock clears a lockout, the failure counter and the attempt window
// ahead of schedule. It returns false when the key had no lockout.
func (l *RateLimiter) Unlock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, had := l.lockouts[key]
	delete(l.lockouts, key)
	delete(l.failures, key)
	delete(l.windows, key)
	if had {
		l.persistLocked()
		l.logger.Info("lockout cleared manually", "namespace", l.namespace, "key", key)
	}
	return had
}

// Sweep drops expired window entries and lockouts. Expired lockouts also
// reset the failure counter so the next lockout starts from the base
// duration again.
func (l *RateLimiter) Sweep() int {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key := range l.windows {
		window := l.pruneWindowLocked(key, now)
		if len(window) == 0 {
			delete(l.windows, key)
		}
	}
	changed := false
	for key, until := range l.lockouts {
		if !now.Before(until) {
			delete(l.lockouts, key)
			delete(l.failures, key)
			removed++
			changed = true
		}
	}
	if changed {
		l.persistLocked()
	}
	return removed
}

// Stats summarizes limiter state.
func (l *RateLimiter) Stats() LimiterStats {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	active := 0
	for _, until := range l.lockouts {
		if now.Before(until) {
			active++
		}
	}
	keys := map[string]struct{}{}
	for k := range l.windows {
		keys[k] = struct{}{}
	}
	for k := range l.failures {
		keys[k] = struct{}{}
	}
	for k := range l.lockouts {
		keys[k] = struct{}{}
	}
	return LimiterStats{TrackedKeys: len(keys), ActiveLockout: active}
}

func (l *RateLimiter) pruneWindowLocked(key string, now time.Time) []time.Time {
	window := l.windows[key]
	kept := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < l.cfg.Window {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = kept
	return kept
}

func (l *RateLimiter) persistLocked() {
	state := limiterState{Lockouts: l.lockouts, Failures: l.failures}
	if err := l.store.Save(l.namespace, state); err != nil {
		l.logger.Error("persist limiter state failed", "namespace", l.namespace, "error", err)
	}
}
