package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned by Lookup when no store holds the key.
var ErrNotFound = errors.New("secret not found")

// SecretStore provides a pluggable interface for API tokens and database
// passwords. Environment variables cover servers and CI; the macOS
// Keychain covers analyst laptops.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// Lookup returns the secret under key as a string, or ErrNotFound.
func Lookup(s SecretStore, key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", key, err)
	}
	if len(v) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return string(v), nil
}

// ── Environment ────────────────────────────────────────────

// EnvStore reads secrets from process environment variables. Keys are
// upper-cased, so "redcap_api_fluve_staffing_key" finds
// REDCAP_API_FLUVE_STAFFING_KEY.
type EnvStore struct{}

func (EnvStore) Set(key string, value []byte) error {
	return os.Setenv(strings.ToUpper(key), string(value))
}

func (EnvStore) Get(key string) ([]byte, error) {
	return []byte(os.Getenv(strings.ToUpper(key))), nil
}

func (EnvStore) Delete(key string) error {
	return os.Unsetenv(strings.ToUpper(key))
}

// ── Chain ──────────────────────────────────────────────────

// Chain consults each store in order and returns the first non-empty
// value. Set and Delete go to the first store only.
type Chain []SecretStore

func (c Chain) Set(key string, value []byte) error {
	if len(c) == 0 {
		return errors.New("empty secret chain")
	}
	return c[0].Set(key, value)
}

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c Chain) Delete(key string) error {
	if len(c) == 0 {
		return nil
	}
	return c[0].Delete(key)
}

// New builds the store for a backend name: "env" (default) or "keychain",
// which falls back to the environment for keys the keychain lacks.
func New(backend string) (SecretStore, error) {
	switch backend {
	case "", "env":
		return EnvStore{}, nil
	case "keychain":
		return Chain{NewKeychainStore(), EnvStore{}}, nil
	default:
		return nil, fmt.Errorf("unknown secret backend %q", backend)
	}
}
