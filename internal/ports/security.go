package ports

import "github.com/viralforge/authvault/internal/domain"

// TokenMinter issues, verifies and revokes signed credential tokens.
// Verify and Refresh return their zero value on any failure so callers
// never have to distinguish reasons a token was rejected.
type TokenMinter interface {
	CreatePair(user domain.User) (access, refresh string, err error)
	Verify(raw string, expected domain.TokenType) *domain.TokenClaims
	Refresh(refreshToken string) string
	Blacklist(raw string)
	CompactBlacklist()
}

// PasswordHasher hides the concrete hash algorithm from the policy layer.
// Implementations must be deliberately slow; callers must not invoke Compare
// while holding a lock shared with unrelated identities.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// SecretStore holds small named secrets (signing keys, the storage key).
// Two variants exist: OS-keyring backed and an environment/in-process
// fallback. The rest of the system never knows which is active.
type SecretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
	Delete(name string) error
	// Persistent reports whether stored secrets survive a process restart.
	// When false the runtime must warn that sessions will not persist.
	Persistent() bool
}
