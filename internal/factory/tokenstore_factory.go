package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mailbox-triage/internal/adapters/tokenstore"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
)

// TokenStoreFactory creates OAuth token stores based on configuration
type TokenStoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTokenStoreFactory creates a new token store factory
func NewTokenStoreFactory(cfg *config.Config, logger *zap.Logger) *TokenStoreFactory {
	return &TokenStoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTokenStore creates a token store based on the configuration
func (f *TokenStoreFactory) CreateTokenStore() (ports.TokenStore, error) {
	storeCfg := f.cfg.GetTokenStore()

	switch storeCfg.Type {
	case "file":
		return tokenstore.NewFileStore(storeCfg.FilePath, f.logger), nil
	case "memory":
		return tokenstore.NewMemoryStore(f.logger), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return tokenstore.NewSQLiteStore(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return tokenstore.NewMySQLStore(storeCfg.MySQLDSN, f.logger)
	case "keyring":
		return tokenstore.NewKeyringStore(storeCfg.KeyringService, f.logger)
	default:
		return nil, fmt.Errorf("unsupported token store type: %s", storeCfg.Type)
	}
}
