package application

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/viralforge/authvault/internal/domain"
	"github.com/viralforge/authvault/internal/ports"
)

const historyNamespace = "password_history"

// PolicyEngine scores candidate passwords, enforces composition rules and
// rejects reuse of recently retired passwords.
type PolicyEngine struct {
	cfg    PolicyConfig
	hasher ports.PasswordHasher
	store  ports.EncryptedStore
	logger *slog.Logger
	common map[string]struct{}

	mu      sync.Mutex
	history map[string][]string
}

func NewPolicyEngine(cfg PolicyConfig, hasher ports.PasswordHasher, store ports.EncryptedStore, logger *slog.Logger) (*PolicyEngine, error) {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 128
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 5
	}
	e := &PolicyEngine{
		cfg:     cfg,
		hasher:  hasher,
		store:   store,
		logger:  logger,
		common:  commonPasswords,
		history: map[string][]string{},
	}
	if cfg.ExtraCommonFile != "" {
		extra, err := loadCommonFile(cfg.ExtraCommonFile)
		if err != nil {
			logger.Warn("extra common-password file unreadable", "path", cfg.ExtraCommonFile, "error", err)
		} else if len(extra) > 0 {
			merged := make(map[string]struct{}, len(commonPasswords)+len(extra))
			for w := range commonPasswords {
				merged[w] = struct{}{}
			}
			for w := range extra {
				merged[w] = struct{}{}
			}
			e.common = merged
		}
	}
	if err := store.Load(historyNamespace, &e.history); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load password history: %w", err)
		}
		e.history = map[string][]string{}
	}
	return e, nil
}

// Score rates a candidate password on a 0-100 scale.
func (e *PolicyEngine) Score(password string) StrengthReport {
	score := 0
	var feedback []string

	switch {
	case len(password) >= 12:
		score += 25
	case len(password) >= 8:
		score += 15
	default:
		feedback = append(feedback, fmt.Sprintf("use at least %d characters", e.cfg.MinLength))
	}

	hasUpper, hasLower, hasDigit, hasSpecial := domain.CharacterClasses(password)
	if hasUpper {
		score += 15
	} else {
		feedback = append(feedback, "add an uppercase letter")
	}
	if hasLower {
		score += 15
	} else {
		feedback = append(feedback, "add a lowercase letter")
	}
	if hasDigit {
		score += 15
	} else {
		feedback = append(feedback, "add a digit")
	}
	if hasSpecial {
		score += 15
	} else {
		feedback = append(feedback, "add a symbol")
	}

	if _, common := e.common[strings.ToLower(password)]; !common {
		score += 20
	} else {
		feedback = append(feedback, "this password appears in breach lists")
	}

	if domain.HasSequentialRun(password, 3) {
		score -= 10
		feedback = append(feedback, "avoid sequential characters like abc or 123")
	}
	if domain.HasRepeatedRun(password, 3) {
		score -= 10
		feedback = append(feedback, "avoid repeated characters like aaa")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return StrengthReport{
		Score:      score,
		Bucket:     strengthBucket(score),
		Acceptable: score >= 40,
		Feedback:   feedback,
	}
}

func strengthBucket(score int) string {
	switch {
	case score >= 80:
		return StrengthVeryStrong
	case score >= 60:
		return StrengthStrong
	case score >= 40:
		return StrengthModerate
	case score >= 20:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}

// ValidateStrength applies the configured composition rules. It returns
// every violation rather than stopping at the first.
func (e *PolicyEngine) ValidateStrength(password string) (bool, []string) {
	var issues []string
	if len(password) < e.cfg.MinLength {
		issues = append(issues, fmt.Sprintf("password must be at least %d characters", e.cfg.MinLength))
	}
	if len(password) > e.cfg.MaxLength {
		issues = append(issues, fmt.Sprintf("password must be at most %d characters", e.cfg.MaxLength))
	}
	hasUpper, hasLower, hasDigit, hasSpecial := domain.CharacterClasses(password)
	if e.cfg.RequireUpper && !hasUpper {
		issues = append(issues, "password must contain an uppercase letter")
	}
	if e.cfg.RequireLower && !hasLower {
		issues = append(issues, "password must contain a lowercase letter")
	}
	if e.cfg.RequireDigit && !hasDigit {
		issues = append(issues, "password must contain a digit")
	}
	if e.cfg.RequireSpecial && !hasSpecial {
		issues = append(issues, "password must contain a symbol")
	}
	if _, common := e.common[strings.ToLower(password)]; common {
		issues = append(issues, "password is too common")
	}
	if report := e.Score(password); !report.Acceptable {
		issues = append(issues, fmt.Sprintf("password strength is %s, needs to be at least %s", report.Bucket, StrengthModerate))
	}
	return len(issues) == 0, issues
}

// CheckHistory reports whether the candidate differs from every recorded
// previous password for the account. True means the candidate is usable.
func (e *PolicyEngine) CheckHistory(email, candidate string) bool {
	e.mu.Lock()
	hashes := append([]string(nil), e.history[email]...)
	e.mu.Unlock()

	// Comparisons run outside the lock: each one costs a full hash.
	for _, h := range hashes {
		if e.hasher.Compare(h, candidate) == nil {
			return false
		}
	}
	return true
}

// RecordHistory remembers a retired password hash, keeping the most recent
// HistoryDepth entries per account.
func (e *PolicyEngine) RecordHistory(email, hash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := append(e.history[email], hash)
	if excess := len(entries) - e.cfg.HistoryDepth; excess > 0 {
		entries = entries[excess:]
	}
	e.history[email] = entries
	if err := e.store.Save(historyNamespace, e.history); err != nil {
		return fmt.Errorf("persist password history: %w", err)
	}
	return nil
}

// ValidateNewPassword combines strength and history checks for a password
// change or signup. currentPassword may be empty when there is no current
// password to compare against.
func (e *PolicyEngine) ValidateNewPassword(email, candidate, currentPassword string) (bool, []string) {
	ok, issues := e.ValidateStrength(candidate)
	if currentPassword != "" && candidate == currentPassword {
		ok = false
		issues = append(issues, "new password must differ from the current password")
	}
	if !e.CheckHistory(email, candidate) {
		ok = false
		issues = append(issues, fmt.Sprintf("password was used within the last %d changes", e.cfg.HistoryDepth))
	}
	if !ok {
		e.logger.Debug("password rejected by policy", "email", email, "issues", len(issues))
	}
	return ok, issues
}

// DropHistory forgets all recorded hashes for an account.
func (e *PolicyEngine) DropHistory(email string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.history[email]; !ok {
		return nil
	}
	delete(e.history, email)
	if err := e.store.Save(historyNamespace, e.history); err != nil {
		return fmt.Errorf("persist password history: %w", err)
	}
	return nil
}

// Hash derives a storable hash for a password using the configured hasher.
func (e *PolicyEngine) Hash(password string) (string, error) {
	return e.hasher.Hash(password)
}

// VerifyPassword reports whether password matches the stored hash.
func (e *PolicyEngine) VerifyPassword(hash, password string) bool {
	return e.hasher.Compare(hash, password) == nil
}

// loadCommonFile reads one password per line, lowercased; blank lines and
// lines starting with # are skipped.
func loadCommonFile(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	words := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[strings.ToLower(line)] = struct{}{}
	}
	return words, scanner.Err()
}
