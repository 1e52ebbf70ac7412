package tokenstore

import (
	"context"
	"sync"

	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// MemoryStore keeps tokens for the lifetime of the process only
type MemoryStore struct {
	tokens map[string]oauth2.Token
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore creates a new in-memory token store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]oauth2.Token),
		logger: logger,
	}
}

// Load retrieves the token stored for an account
func (s *MemoryStore) Load(_ context.Context, account string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[account]
	if !ok {
		return nil, ports.ErrTokenNotFound
	}
	return &token, nil
}

// Save stores or replaces the token for an account
func (s *MemoryStore) Save(_ context.Context, account string, token *oauth2.Token) error {
	if _, err := encodeToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[account] = *token
	s.logger.Debug("Stored token in memory", zap.String("account", account))
	return nil
}

// Delete removes the token for an account
func (s *MemoryStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, account)
	return nil
}
