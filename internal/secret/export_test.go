package secret

// NewKeychainStoreWith lets tests replace the security CLI.
func NewKeychainStoreWith(run func(name string, args ...string) ([]byte, error)) *KeychainStore {
	return &KeychainStore{service: keychainService, run: run}
}
