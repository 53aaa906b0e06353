// Package credential resolves secrets from the OS keyring, falling back to
// values from the configuration file.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/99designs/keyring"
)

const serviceName = "taskminder"

// Keys under which secrets are stored in the keyring.
const (
	KeyJWTSecret     = "auth.jwt_secret"
	KeySMTPPassword  = "notify.smtp.password"
	KeyTelegramToken = "notify.telegram.token"
)

// Keys lists every key the service reads from the keyring.
func Keys() []string {
	return []string{KeyJWTSecret, KeySMTPPassword, KeyTelegramToken}
}

// ValidKey reports whether key is one of Keys.
func ValidKey(key string) bool {
	return slices.Contains(Keys(), key)
}

// Resolver looks secrets up in a keyring. A nil keyring resolves every key
// to its fallback.
type Resolver struct {
	ring keyring.Keyring
}

// NewResolver wraps an already opened keyring.
func NewResolver(ring keyring.Keyring) *Resolver {
	return &Resolver{ring: ring}
}

// Open returns a Resolver backed by the system keyring when enabled is
// true, or a fallback-only Resolver otherwise.
func Open(enabled bool) (*Resolver, error) {
	if !enabled {
		return &Resolver{}, nil
	}
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return NewResolver(ring), nil
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	dir := filepath.Join(".", "credentials")
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", serviceName, "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Resolve returns the keyring value for key, or fallback when the key is
// absent or the keyring is disabled.
func (r *Resolver) Resolve(key, fallback string) (string, error) {
	if r == nil || r.ring == nil {
		return fallback, nil
	}
	item, err := r.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fallback, nil
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (r *Resolver) Set(key, value string) error {
	if r == nil || r.ring == nil {
		return fmt.Errorf("setting credential %q: keyring disabled", key)
	}
	err := r.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (r *Resolver) Delete(key string) error {
	if r == nil || r.ring == nil {
		return fmt.Errorf("deleting credential %q: keyring disabled", key)
	}
	if err := r.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
