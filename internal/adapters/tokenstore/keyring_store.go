package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// KeyringStore keeps tokens in the operating system credential store
type KeyringStore struct {
	ring   keyring.Keyring
	logger *zap.Logger
}

// NewKeyringStore opens the system keyring under the given service name
func NewKeyringStore(service string, logger *zap.Logger) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringStoreWith(ring, logger), nil
}

// NewKeyringStoreWith wraps an already opened keyring
func NewKeyringStoreWith(ring keyring.Keyring, logger *zap.Logger) *KeyringStore {
	return &KeyringStore{
		ring:   ring,
		logger: logger,
	}
}

// Load retrieves the token stored for an account
func (s *KeyringStore) Load(_ context.Context, account string) (*oauth2.Token, error) {
	item, err := s.ring.Get(account)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ports.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token for %q: %w", account, err)
	}
	return decodeToken(item.Data)
}

// Save stores or replaces the token for an account
func (s *KeyringStore) Save(_ context.Context, account string, token *oauth2.Token) error {
	data, err := encodeToken(token)
	if err != nil {
		return err
	}

	err = s.ring.Set(keyring.Item{
		Key:   account,
		Data:  data,
		Label: "mailbox-triage OAuth token",
	})
	if err != nil {
		return fmt.Errorf("failed to store token for %q: %w", account, err)
	}

	s.logger.Debug("Stored token in keyring", zap.String("account", account))
	return nil
}

// Delete removes the token for an account
func (s *KeyringStore) Delete(_ context.Context, account string) error {
	if err := s.ring.Remove(account); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete token for %q: %w", account, err)
	}
	return nil
}
