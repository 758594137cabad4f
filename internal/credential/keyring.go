// Package credential stores secrets such as the Jira token in the system
// keyring and resolves config references to them.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "taskhub"

// RefPrefix marks a config value as a keyring lookup ("keyring:<key>").
const RefPrefix = "keyring:"

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/taskhub/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("taskhub-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "taskhub " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Resolve turns a config reference into a secret. "keyring:<key>" is read
// from the keyring; anything else is returned as a literal value.
func Resolve(ref string) (string, error) {
	return resolve(ref, Get)
}

func resolve(ref string, get func(string) (string, error)) (string, error) {
	key, ok := KeyOf(ref)
	if !ok {
		return ref, nil
	}
	if key == "" {
		return "", fmt.Errorf("credential reference %q names no key", ref)
	}
	return get(key)
}

// KeyOf reports the keyring key named by ref, if ref is a keyring reference.
func KeyOf(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(ref, RefPrefix)), true
}
