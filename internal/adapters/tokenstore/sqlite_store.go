package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// SQLiteStore is a SQLite implementation of the TokenStore interface
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite token store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_tokens (
			account TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Load retrieves the token stored for an account
func (s *SQLiteStore) Load(ctx context.Context, account string) (*oauth2.Token, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM oauth_tokens WHERE account = ?
	`, account).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to query token: %w", err)
	}
	return decodeToken([]byte(data))
}

// Save stores or replaces the token for an account
func (s *SQLiteStore) Save(ctx context.Context, account string, token *oauth2.Token) error {
	data, err := encodeToken(token)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO oauth_tokens (account, token, updated_at)
		VALUES (?, ?, ?)
	`, account, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Debug("Stored token in SQLite", zap.String("account", account))
	return nil
}

// Delete removes the token for an account
func (s *SQLiteStore) Delete(ctx context.Context, account string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE account = ?`, account); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Stop closes the database connection
func (s *SQLiteStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
