package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "fluve"

// runner executes a command and returns its combined output.
type runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// KeychainStore implements SecretStore using the macOS Keychain
// via the `security` CLI tool.
type KeychainStore struct {
	service string
	run     runner
}

// NewKeychainStore creates a KeychainStore for the "fluve" service.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService, run: execRunner}
}

// Set stores a secret in the macOS Keychain, replacing any existing value.
func (k *KeychainStore) Set(key string, value []byte) error {
	out, err := k.run("security", "add-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", string(value),
		"-U", // update if exists
	)
	if err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get retrieves a secret from the macOS Keychain.
// Returns empty slice and nil error if the key doesn't exist.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.run("security", "find-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", // output only the password
	)
	if err != nil {
		// "security" exits 44 when the item is missing
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, nil
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			// no security binary: not on macOS
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes a secret from the macOS Keychain. A missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	_, _ = k.run("security", "delete-generic-password",
		"-a", key,
		"-s", k.service,
	)
	return nil
}
