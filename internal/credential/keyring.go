// Package credential resolves secrets stored in the system keyring.
package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "mailpoll"

// Prefix marks a configuration value as a keyring reference
const Prefix = "keyring:"

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
		FileDir:                  "~/.config/mailpoll/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailpoll-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Resolver looks up keyring references
type Resolver struct {
	Open func() (keyring.Keyring, error)
}

// Default resolves against the system keyring
var Default = &Resolver{Open: openKeyring}

// Resolve returns value unchanged unless it is "keyring:<key>", in which
// case the stored secret is returned
func (r *Resolver) Resolve(value string) (string, error) {
	key, ok := strings.CutPrefix(value, Prefix)
	if !ok {
		return value, nil
	}
	ring, err := r.Open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
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
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}
