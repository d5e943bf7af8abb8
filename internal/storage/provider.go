// Package storage persists the single session credential.
package storage

// Provider is the interface for the credential slot on disk.
type Provider interface {
	// Load returns the stored credential, or "" when none is stored.
	Load() (string, error)
	// Save atomically replaces the stored credential.
	Save(token string) error
	// Clear removes the stored credential. Clearing an empty slot is not an error.
	Clear() error
}
