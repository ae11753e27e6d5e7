package secrets

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/viralforge/authvault/internal/ports"

	"github.com/viralforge/authvault/internal/domain"
)

// EnvStore is the fallback SecretStore used when no OS keyring is reachable
// (headless boxes, stripped-down containers). Reads resolve through
// environment variables; writes live only in process memory, so anything
// generated at runtime is lost on restart. Callers learn this via Persistent.
type EnvStore struct {
	prefix string

	mu     sync.Mutex
	values map[string]string
}

// NewEnvStore creates a fallback store. prefix is upper-cased and prepended
// to the secret name to form the environment variable, e.g.
// ("authvault", "storage_key") -> AUTHVAULT_STORAGE_KEY.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{
		prefix: strings.ToUpper(prefix),
		values: make(map[string]string),
	}
}

func (s *EnvStore) envName(name string) string {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name))
	return s.prefix + "_" + cleaned
}

func (s *EnvStore) Get(name string) (string, error) {
	if value := os.Getenv(s.envName(name)); value != "" {
		return value, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.values[name]; ok {
		return value, nil
	}
	return "", domain.ErrNotFound
}

func (s *EnvStore) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

func (s *EnvStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok && os.Getenv(s.envName(name)) == "" {
		return domain.ErrNotFound
	}
	delete(s.values, name)
	return nil
}

func (s *EnvStore) Persistent() bool { return false }

// Select returns the keyring store when the OS backend works, otherwise the
// environment fallback with a warning. The rest of the system only sees the
// ports.SecretStore interface.
func Select(service string, logger *slog.Logger) ports.SecretStore {
	store, err := NewKeyringStore(service)
	if err == nil {
		return store
	}
	logger.Warn("OS keyring unavailable, falling back to environment secret store",
		"service", service,
		"error", err,
	)
	return NewEnvStore(service)
}
