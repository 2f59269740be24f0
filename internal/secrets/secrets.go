// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider API keys out of config files by storing them
// in the OS keyring and resolving keyring:// references at config load.
package secrets

// DefaultService is the keyring service wikiqa stores its keys under.
const DefaultService = "wikiqa"

// Store provides secure secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// A missing key is reported as CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// ProviderKey is the conventional key name for a provider's API key, e.g.
// "openai-api-key".
func ProviderKey(provider string) string {
	return provider + "-api-key"
}

// URI builds the keyring reference for service/key, suitable as a config
// value.
func URI(service, key string) string {
	return keyringScheme + service + "/" + key
}
