// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"sort"
	"strings"

	"github.com/spf13/viper"

	wikierr "github.com/sigil-dev/wikiqa/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
// The key may itself contain slashes.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", wikierr.Errorf(wikierr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", wikierr.Errorf(wikierr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret a keyring:// value points at, or value unchanged
// when it is not a keyring reference.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", wikierr.Reclassify(err, wikierr.CodeSecretResolveFailure, "resolving "+value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring:// string in v with its secret. All
// unresolvable keys are reported together, in key order.
func ResolveViper(v *viper.Viper, store Store) error {
	keys := v.AllKeys()
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, wikierr.Reclassify(err, wikierr.CodeSecretResolveFailure, "config key "+key))
			continue
		}
		v.Set(key, resolved)
	}

	if len(errs) > 0 {
		return wikierr.Reclassify(wikierr.Join(errs...), wikierr.CodeSecretResolveFailure, "resolving keyring references")
	}
	return nil
}
