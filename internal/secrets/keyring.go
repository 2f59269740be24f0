// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

// indexKey holds a JSON list of the key names stored for a service, since
// go-keyring cannot enumerate entries.
const indexKey = "::keys-index"

// KeyringStore implements Store on the OS keyring (Keychain, secret-service
// or Credential Manager).
type KeyringStore struct{}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkInput(op, service, key string) error {
	if service == "" {
		return wikierr.New(wikierr.CodeSecretInvalidInput, "secret "+op+": service must not be empty")
	}
	if key == "" {
		return wikierr.New(wikierr.CodeSecretInvalidInput, "secret "+op+": key must not be empty")
	}
	if key == indexKey {
		return wikierr.New(wikierr.CodeSecretInvalidInput, "secret "+op+": key name is reserved")
	}
	return nil
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkInput("store", service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return wikierr.Wrapf(err, wikierr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.saveIndex(service, append(keys, key))
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkInput("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", wikierr.Errorf(wikierr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", wikierr.Wrapf(err, wikierr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkInput("delete", service, key); err != nil {
		return err
	}

	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return wikierr.Errorf(wikierr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return wikierr.Wrapf(err, wikierr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := s.List(service)
	if err != nil {
		return err
	}
	return s.saveIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

// List returns stored key names in insertion order.
func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wikierr.Wrapf(err, wikierr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, wikierr.Wrapf(err, wikierr.CodeSecretListFailure, "decoding key index for service %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(service string, keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("failed to remove empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return wikierr.Wrapf(err, wikierr.CodeSecretListFailure, "encoding key index for service %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return wikierr.Wrapf(err, wikierr.CodeSecretListFailure, "saving key index for service %s", service)
	}
	return nil
}
