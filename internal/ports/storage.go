package ports

// EncryptedStore is namespace-oriented encrypted-at-rest persistence.
// One namespace per logical table (identities, sessions, blacklist, …), each
// independently loadable so corruption in one cannot poison another.
//
// Load into a missing namespace returns domain.ErrNotFound; callers start
// from empty state. Tampered or wrongly-keyed ciphertext surfaces as
// domain.ErrStorageCorrupted, never as silently empty data.
type EncryptedStore interface {
	Save(namespace string, v any) error
	Load(namespace string, v any) error
	// Delete overwrites the backing bytes before unlinking.
	Delete(namespace string) error
	Exists(namespace string) bool
}
